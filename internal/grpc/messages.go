package grpc

// Messages mirror api/proto/shardvm.proto, marshaled by jsonCodec
// rather than generated protobuf code (see codec.go).

type AuthRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat"`
	Nbf      int64  `json:"nbf"`
}

type TerminalClientMessage struct {
	Attach *TerminalAttach `json:"attach,omitempty"`
	Stdin  *string         `json:"stdin,omitempty"`
}

type TerminalAttach struct {
	VMID string `json:"vm_id"`
	PID  uint64 `json:"pid"`
}

type TerminalServerMessage struct {
	Stdout string `json:"stdout"`
}

type SpyClientMessage struct {
	Attach      *SpyAttach      `json:"attach,omitempty"`
	Subscribe   *SpySubscribe   `json:"subscribe,omitempty"`
	Unsubscribe *SpyUnsubscribe `json:"unsubscribe,omitempty"`
	Stdin       *SpyStdin       `json:"stdin,omitempty"`
}

type SpyAttach struct {
	VMID string `json:"vm_id"`
}

type SpySubscribe struct {
	PID uint64 `json:"pid"`
}

type SpyUnsubscribe struct {
	PID uint64 `json:"pid"`
}

type SpyStdin struct {
	PID  uint64 `json:"pid"`
	Line string `json:"line"`
}

type SpyServerMessageKind int

const (
	SpyMsgProcessList SpyServerMessageKind = iota
	SpyMsgStdout
	SpyMsgStdinEcho
	SpyMsgProcessGone
	SpyMsgError
)

type SpyServerMessage struct {
	Kind    SpyServerMessageKind `json:"kind"`
	PID     uint64               `json:"pid,omitempty"`
	Text    string               `json:"text,omitempty"`
	PIDList []uint64             `json:"pid_list,omitempty"`
}

type RunRequest struct {
	VMID    string   `json:"vm_id"`
	BinName string   `json:"bin_name"`
	Args    []string `json:"args,omitempty"`
}

type RunServerMessage struct {
	Stdout   string `json:"stdout"`
	Finished bool   `json:"finished"`
	ExitCode int32  `json:"exit_code"`
}

type MailSubscribeRequest struct {
	Address string `json:"address"`
}

type MailEvent struct {
	ID            string `json:"id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Subject       string `json:"subject"`
	CreatedAtUnix int64  `json:"created_at_unix"`
}
