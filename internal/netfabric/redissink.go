package netfabric

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisSink forwards packets destined for another pod over Redis Pub/Sub,
// the cross-host delivery mechanism this network fabric was designed
// around: publishing on channel net:pod:{cluster_id} and maintaining the
// net:route:{subnet} / net:arp:{ip} / net:pods keys that let any pod
// learn which cluster currently owns a given IP.
type RedisSink struct {
	client    *redis.Client
	clusterID string
}

func NewRedisSink(client *redis.Client, clusterID string) *RedisSink {
	return &RedisSink{client: client, clusterID: clusterID}
}

// Send looks up which cluster owns pkt.DstIP via net:arp:{ip} and
// publishes the packet to that cluster's inbound channel.
func (s *RedisSink) Send(pkt Packet) error {
	ctx := context.Background()

	owner, err := s.client.Get(ctx, fmt.Sprintf("net:arp:%s", pkt.DstIP)).Result()
	if err == redis.Nil {
		return fmt.Errorf("netfabric: no known owner for %s", pkt.DstIP)
	}
	if err != nil {
		return fmt.Errorf("netfabric: arp lookup for %s: %w", pkt.DstIP, err)
	}

	payload, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("netfabric: marshal packet: %w", err)
	}

	channel := fmt.Sprintf("net:pod:%s", owner)
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("netfabric: publish to %s: %w", channel, err)
	}
	return nil
}

// AnnounceSubnet records that this cluster owns subnet, so other pods'
// routers can find it via net:route:{subnet}.
func (s *RedisSink) AnnounceSubnet(ctx context.Context, subnet string) error {
	if err := s.client.Set(ctx, fmt.Sprintf("net:route:%s", subnet), s.clusterID, 0).Err(); err != nil {
		return fmt.Errorf("netfabric: announce subnet %s: %w", subnet, err)
	}
	return s.client.SAdd(ctx, "net:pods", s.clusterID).Err()
}

// AnnounceVM records that this cluster currently hosts ip, so remote
// senders can resolve net:arp:{ip} to our cluster ID.
func (s *RedisSink) AnnounceVM(ctx context.Context, ip string) error {
	return s.client.Set(ctx, fmt.Sprintf("net:arp:%s", ip), s.clusterID, 0).Err()
}

// Subscribe listens for packets published to this cluster's inbound
// channel and invokes handle for each one. Blocks until ctx is cancelled.
func (s *RedisSink) Subscribe(ctx context.Context, handle func(Packet)) error {
	channel := fmt.Sprintf("net:pod:%s", s.clusterID)
	sub := s.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var pkt Packet
			if err := json.Unmarshal([]byte(msg.Payload), &pkt); err != nil {
				continue
			}
			handle(pkt)
		}
	}
}
