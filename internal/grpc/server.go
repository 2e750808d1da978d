// Package grpc exposes the tick engine's hubs to external clients: a
// unary auth endpoint, and streaming endpoints for the Terminal, Spy,
// and Run hubs plus mail-event notifications. The core never imports
// this package — it only ever sees a *hubs.TerminalHub etc.
package grpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oriys/shardvm/internal/auth"
	"github.com/oriys/shardvm/internal/gameloop"
	"github.com/oriys/shardvm/internal/logging"
	"github.com/oriys/shardvm/internal/mailbox"
	"github.com/oriys/shardvm/internal/store"
)

// Server implements ShardVMServer against a game loop's hubs.
type Server struct {
	issuer *auth.Issuer
	loop   *gameloop.Loop
	store  store.Store
	mail   *mailbox.Hub

	server *grpc.Server
}

func NewServer(issuer *auth.Issuer, loop *gameloop.Loop, st store.Store, mail *mailbox.Hub) *Server {
	return &Server{issuer: issuer, loop: loop, store: st, mail: mail}
}

// Start begins serving on addr in a background goroutine.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.server = grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor, s.authUnaryInterceptor),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor, s.authStreamInterceptor),
	)
	s.server.RegisterService(&serviceDesc, s)

	logging.Op().Info("grpc server started", "addr", addr)

	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("grpc server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}

// Authenticate exchanges a JWT for the claims the client's session
// carries for the rest of its lifetime.
func (s *Server) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResponse, error) {
	if req.Token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	claims, err := s.issuer.Validate(req.Token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return &AuthResponse{
		Sub:      claims.Subject,
		Username: claims.Username,
		Exp:      claims.ExpiresAt.Unix(),
		Iat:      claims.IssuedAt.Unix(),
		Nbf:      claims.NotBefore.Unix(),
	}, nil
}

// Terminal bridges one interactive shell's stdin/stdout to the client.
// The first message on the stream must be an Attach naming the vm/pid;
// every message after that is a stdin line.
func (s *Server) Terminal(stream ShardVM_TerminalServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Attach == nil {
		return status.Error(codes.InvalidArgument, "first message must attach to a vm/pid")
	}

	sessionID, stdoutRx, stdinTx := s.loop.Terminals().Open(first.Attach.VMID, first.Attach.PID)
	defer s.loop.Terminals().Close(sessionID)

	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			if msg.Stdin != nil {
				select {
				case stdinTx <- *msg.Stdin:
				default:
				}
			}
		}
	}()

	for {
		select {
		case out, ok := <-stdoutRx:
			if !ok {
				return nil
			}
			if err := stream.Send(&TerminalServerMessage{Stdout: out}); err != nil {
				return err
			}
		case err := <-recvErr:
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Spy observes stdout across several PIDs on one VM, and can inject
// stdin into any of them.
func (s *Server) Spy(stream ShardVM_SpyServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Attach == nil {
		return status.Error(codes.InvalidArgument, "first message must attach to a vm")
	}

	playerID := ""
	if claims, ok := ClaimsFromContext(stream.Context()); ok {
		playerID = claims.Subject
	}
	connID, conn := s.loop.Spies().Open(playerID, first.Attach.VMID)
	defer s.loop.Spies().Close(connID)

	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			switch {
			case msg.Subscribe != nil:
				conn.Subscribe(msg.Subscribe.PID)
			case msg.Unsubscribe != nil:
				conn.Unsubscribe(msg.Unsubscribe.PID)
			case msg.Stdin != nil:
				tx := conn.Subscribe(msg.Stdin.PID)
				select {
				case tx <- msg.Stdin.Line:
				default:
				}
			}
		}
	}()

	for {
		select {
		case msg, ok := <-conn.Downstream():
			if !ok {
				return nil
			}
			if err := stream.Send(&SpyServerMessage{
				Kind:    SpyServerMessageKind(msg.Kind),
				PID:     msg.PID,
				Text:    msg.Text,
				PIDList: msg.PIDList,
			}); err != nil {
				return err
			}
		case err := <-recvErr:
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Run executes binName to completion (or to the hub's timeout),
// streaming its stdout as it accumulates.
func (s *Server) Run(req *RunRequest, stream ShardVM_RunServer) error {
	if req.VMID == "" || req.BinName == "" {
		return status.Error(codes.InvalidArgument, "vm_id and bin_name are required")
	}

	proc, err := s.loop.Spawn(req.VMID, 0, "", req.BinName, req.Args)
	if err != nil {
		return status.Error(codes.NotFound, err.Error())
	}

	run := s.loop.Runs().Register(req.VMID, proc.PID, req.BinName, time.Now())
	defer s.loop.Runs().Unregister(req.VMID, proc.PID)

	for msg := range run.Stream() {
		if err := stream.Send(&RunServerMessage{
			Stdout:   msg.Stdout,
			Finished: msg.Finished,
			ExitCode: int32(msg.ExitCode),
		}); err != nil {
			return err
		}
	}
	return nil
}

// MailEvents streams new-mail notifications for one address until the
// client disconnects.
func (s *Server) MailEvents(req *MailSubscribeRequest, stream ShardVM_MailEventsServer) error {
	if req.Address == "" {
		return status.Error(codes.InvalidArgument, "address is required")
	}
	ch, cancel := s.mail.Subscribe(req.Address)
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if evt.Kind != mailbox.NewEmail {
				continue
			}
			out := MailEvent{To: req.Address}
			if rec, ok := evt.Email.(*store.EmailRecord); ok {
				out = MailEvent{
					ID: rec.ID, From: rec.From, To: rec.To,
					Subject: rec.Subject, CreatedAtUnix: rec.CreatedAt.Unix(),
				}
			}
			if err := stream.Send(&out); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
