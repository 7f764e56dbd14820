package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/victorlabs/vicmarket/pkg/market"
)

const topicReckon = "vicmarket-reckon"

// Gossip broadcasts settlement receipts to peer marketplace nodes (indexers,
// mirrors) over libp2p gossipsub and hands received receipts to a handler.
// Receipts received from peers are informational: each node settles only its
// own buys, so there is no consensus to reach, just propagation.
type Gossip struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	log   *zap.SugaredLogger

	muH     sync.Mutex
	handler func(*market.Receipt)
}

type Config struct {
	ListenAddr string   // libp2p multiaddr, e.g. /ip4/0.0.0.0/tcp/9000
	Bootstrap  []string // peer multiaddrs to dial on startup
	Logger     *zap.SugaredLogger
}

// NewGossip starts a libp2p host, joins the receipt topic and begins
// receiving.
func NewGossip(ctx context.Context, cfg Config) (*Gossip, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	g := &Gossip{h: h, ps: ps, log: cfg.Logger}
	if g.log == nil {
		g.log = zap.NewNop().Sugar()
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			g.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if g.topic, err = ps.Join(topicReckon); err != nil {
		return nil, err
	}
	if g.sub, err = g.topic.Subscribe(); err != nil {
		return nil, err
	}

	go g.receiveLoop(ctx)

	g.log.Infow("gossip_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return g, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

// OnReceipt registers the handler invoked for receipts received from peers.
func (g *Gossip) OnReceipt(fn func(*market.Receipt)) {
	g.muH.Lock()
	g.handler = fn
	g.muH.Unlock()
}

// PublishReceipt broadcasts a settlement receipt to all peers.
func (g *Gossip) PublishReceipt(ctx context.Context, r *market.Receipt) error {
	data, err := gobEncode(r)
	if err != nil {
		return err
	}
	return g.topic.Publish(ctx, data)
}

func (g *Gossip) receiveLoop(ctx context.Context) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return // subscription closed or ctx done
		}
		if msg.ReceivedFrom == g.h.ID() {
			continue // our own publish
		}

		var r market.Receipt
		if err := gobDecode(msg.Data, &r); err != nil {
			g.log.Warnw("bad_receipt_frame", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}

		g.log.Infow("peer_reckon", "key", string(r.Key), "from", msg.ReceivedFrom.String())

		g.muH.Lock()
		fn := g.handler
		g.muH.Unlock()
		if fn != nil {
			fn(&r)
		}
	}
}

// Close shuts down the subscription and host.
func (g *Gossip) Close() error {
	g.sub.Cancel()
	if err := g.topic.Close(); err != nil {
		return err
	}
	return g.h.Close()
}
