package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/escrow"
	"anarchy.ttfm/sbtcpay/events"
	"anarchy.ttfm/sbtcpay/internal/tokenrpc/rpc"
	"anarchy.ttfm/sbtcpay/operator"
	"anarchy.ttfm/sbtcpay/payments"
	"anarchy.ttfm/sbtcpay/tokens"
	"anarchy.ttfm/sbtcpay/tokens/mock"
	"anarchy.ttfm/sbtcpay/tokens/noop"
	"anarchy.ttfm/sbtcpay/tokens/sip010"
	"github.com/dgraph-io/badger/v4"
	"github.com/gabstv/httpdigest"
	"golang.org/x/net/proxy"
)

const (
	TokenNoop   = "noop"
	TokenMock   = "mock"
	TokenSip010 = "sip010"
)

var (
	ErrConflictingTransport = errors.New("token-rpc accepts either digest credentials or a socks5 proxy, not both")
	ErrUnknownToken         = errors.New("unknown token backend")
	ErrMissingSecret        = errors.New("jwt-secret is required")
)

// Yaml configuration reference
type (
	TokenRPC struct {
		Url      string            `yaml:"url"`
		Username *string           `yaml:"username,omitempty"`
		Password *string           `yaml:"password,omitempty"`
		Socks5   string            `yaml:"socks5,omitempty"`
		Headers  map[string]string `yaml:"headers,omitempty"`
	}
	KafkaSink struct {
		Brokers      []string          `yaml:"brokers"`
		Topic        string            `yaml:"topic"`
		TopicByEvent map[string]string `yaml:"topic-by-event,omitempty"`
	}
	Config struct {
		ListenAddress string `yaml:"listen-address"`
		DatabasePath  string `yaml:"database-path"`
		// Time between blocks. Ignored when following the node height.
		BlockInterval    time.Duration `yaml:"block-interval"`
		FollowNodeHeight bool          `yaml:"follow-node-height"`
		ProcessInterval  time.Duration `yaml:"process-interval"`
		// Deploys both contracts on first start
		Owner string `yaml:"owner"`
		// Principal the operator worker signs with
		Operator      string `yaml:"operator"`
		OperatorJobs  int    `yaml:"operator-jobs"`
		JwtSecret     string `yaml:"jwt-secret"`
		RequireEscrow bool   `yaml:"require-escrow"`
		// sBTC token contract. Enables the token integration on bootstrap when set.
		SbtcContract string            `yaml:"sbtc-contract,omitempty"`
		Token        string            `yaml:"token"`
		MockBalances map[string]uint64 `yaml:"mock-balances,omitempty"`
		TokenRpc     TokenRPC          `yaml:"token-rpc"`
		Kafka        *KafkaSink        `yaml:"kafka,omitempty"`
		LogEvents    bool              `yaml:"log-events"`
	}
)

// Node is everything a compiled configuration runs
type Node struct {
	DB        *badger.DB
	Chain     *chain.Chain
	Ledger    *escrow.Controller
	Processor *payments.Controller
	Worker    *operator.Worker
	Token     tokens.Token
	// Set when the token backend is a SIP-010 node
	Remote  *sip010.Token
	closers []io.Closer
}

func (c *TokenRPC) httpClient() (client *http.Client, err error) {
	client = &http.Client{}
	credentials := c.Username != nil && c.Password != nil
	switch {
	case credentials && c.Socks5 != "":
		return nil, ErrConflictingTransport
	case credentials:
		client.Transport = httpdigest.New(*c.Username, *c.Password)
	case c.Socks5 != "":
		dialer, err := proxy.SOCKS5("tcp", c.Socks5, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare socks5 dialer: %w", err)
		}
		transport := &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		}
		client.Transport = transport
	}
	return client, nil
}

func (c *Config) token() (token tokens.Token, remote *sip010.Token, err error) {
	switch c.Token {
	case "", TokenNoop:
		return noop.New(), nil, nil
	case TokenMock:
		return mock.New(mock.Config{Balances: c.MockBalances}), nil, nil
	case TokenSip010:
		client, err := c.TokenRpc.httpClient()
		if err != nil {
			return nil, nil, err
		}
		remote = sip010.New(sip010.Config{
			Client: rpc.New(rpc.Config{
				Url:           c.TokenRpc.Url,
				CustomHeaders: c.TokenRpc.Headers,
				Client:        client,
			}),
		})
		return remote, remote, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownToken, c.Token)
	}
}

func (c *Config) sinks() (sinks []chain.Sink, closers []io.Closer, err error) {
	if c.LogEvents {
		sinks = append(sinks, events.NewLog(nil))
	}
	if c.Kafka != nil {
		sink, err := events.NewKafka(events.KafkaConfig{
			Brokers:      c.Kafka.Brokers,
			Topic:        c.Kafka.Topic,
			TopicByEvent: c.Kafka.TopicByEvent,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to prepare kafka sink: %w", err)
		}
		sinks = append(sinks, sink)
		closers = append(closers, sink)
	}
	return sinks, closers, nil
}

func (c *Config) Compile() (node Node, err error) {
	owner := chain.Principal(c.Owner)
	err = owner.Validate()
	if err != nil {
		return node, fmt.Errorf("invalid owner: %w", err)
	}

	node.Token, node.Remote, err = c.token()
	if err != nil {
		return node, err
	}

	sinks, closers, err := c.sinks()
	if err != nil {
		return node, err
	}
	node.closers = closers

	node.DB, err = badger.Open(badger.DefaultOptions(c.DatabasePath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		node.Close()
		return node, fmt.Errorf("failed to open database: %w", err)
	}
	node.closers = append(node.closers, node.DB)

	node.Chain = chain.New(chain.Config{DB: node.DB, Sinks: sinks})
	node.Ledger = escrow.New(escrow.Config{
		Chain:    node.Chain,
		Contract: owner + ".sbtc-handler",
		Token:    node.Token,
	})
	node.Processor = payments.New(payments.Config{
		Chain:         node.Chain,
		Contract:      owner + ".payment-processor",
		Ledger:        node.Ledger,
		RequireEscrow: c.RequireEscrow,
	})
	node.Worker = operator.New(operator.Config{
		Chain:     node.Chain,
		Ledger:    node.Ledger,
		Processor: node.Processor,
		Token:     node.Token,
		Operator:  chain.Principal(c.Operator),
		Jobs:      c.OperatorJobs,
	})
	return node, nil
}

// Bootstrap deploys and links both contracts the first time the database is used
func (n *Node) Bootstrap(ctx context.Context, cfg *Config) (err error) {
	owner := chain.Principal(cfg.Owner)

	_, err = n.Processor.Settings(ctx)
	if errors.Is(err, payments.ErrNotDeployed) {
		log.Println("Deploying payment processor:", n.Processor.Contract())
		err = n.Processor.Deploy(ctx, owner)
	}
	if err != nil {
		return fmt.Errorf("failed to bootstrap payment processor: %w", err)
	}

	settings, err := n.Ledger.Settings(ctx)
	if errors.Is(err, escrow.ErrNotDeployed) {
		log.Println("Deploying escrow ledger:", n.Ledger.Contract())
		err = n.Ledger.Deploy(ctx, owner)
		if err == nil {
			err = n.Ledger.SetPaymentProcessor(ctx, owner, n.Processor.Contract())
		}
		if err == nil {
			settings, err = n.Ledger.Settings(ctx)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to bootstrap escrow ledger: %w", err)
	}

	if cfg.Operator != "" && !settings.IsOperator(chain.Principal(cfg.Operator)) && settings.Owner == owner {
		err = n.Ledger.AddAuthorizedOperator(ctx, owner, chain.Principal(cfg.Operator))
		if err != nil {
			return fmt.Errorf("failed to authorize operator: %w", err)
		}
	}

	if cfg.SbtcContract != "" && (!settings.IntegrationEnabled || settings.SbtcContract != cfg.SbtcContract) && settings.Owner == owner {
		err = n.Ledger.ConfigureSbtcContract(ctx, owner, cfg.SbtcContract)
		if err != nil {
			return fmt.Errorf("failed to configure sbtc contract: %w", err)
		}
	}
	return nil
}

// Produce advances the chain until ctx is done. With follow set the height tracks the token node tip,
// otherwise one block is mined every interval.
func (n *Node) Produce(ctx context.Context, interval time.Duration, follow bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !follow || n.Remote == nil {
			_, err := n.Chain.Mine(ctx, 1)
			if err != nil && ctx.Err() == nil {
				log.Println("ERROR|MINING|BLOCKS", err)
			}
			continue
		}

		err := n.follow(ctx)
		if err != nil && ctx.Err() == nil {
			log.Println("ERROR|FOLLOWING|HEIGHT", err)
		}
	}
}

func (n *Node) follow(ctx context.Context) (err error) {
	tip, err := n.Remote.Height(ctx)
	if err != nil {
		return err
	}
	height, err := n.Chain.Height()
	if err != nil {
		return err
	}
	if tip <= height {
		return nil
	}
	_, err = n.Chain.Mine(ctx, tip-height)
	return err
}

func (n *Node) Close() {
	for index := len(n.closers) - 1; index >= 0; index-- {
		err := n.closers[index].Close()
		if err != nil {
			log.Println("ERROR|CLOSING|NODE", err)
		}
	}
}
