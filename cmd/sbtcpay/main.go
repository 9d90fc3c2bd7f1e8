package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anarchy.ttfm/sbtcpay/chain"
	"anarchy.ttfm/sbtcpay/cmd/sbtcpay/internal/router"
	"anarchy.ttfm/sbtcpay/decimal"
	"anarchy.ttfm/sbtcpay/utils"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBlockInterval   = 10 * time.Second
	DefaultProcessInterval = time.Minute
	ShutdownTimeout        = 10 * time.Second
)

func load(c *cli.Command) (cfg Config, err error) {
	contents, err := os.ReadFile(c.String("config"))
	if err != nil {
		return cfg, fmt.Errorf("failed to read configuration: %w", err)
	}

	err = yaml.Unmarshal(contents, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = DefaultBlockInterval
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = DefaultProcessInterval
	}
	return cfg, nil
}

func serve(ctx context.Context, c *cli.Command) (err error) {
	if c.Bool("debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := load(c)
	if err != nil {
		return err
	}
	if cfg.JwtSecret == "" {
		return ErrMissingSecret
	}

	node, err := cfg.Compile()
	if err != nil {
		return err
	}
	defer node.Close()

	err = node.Bootstrap(ctx, &cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := gin.Default()
	r := router.Router{
		Processor: node.Processor,
		Ledger:    node.Ledger,
		Chain:     node.Chain,
		Auth:      &router.Authenticator{Secret: []byte(cfg.JwtSecret)},
		Base:      e,
	}
	r.Register()

	go node.Produce(ctx, cfg.BlockInterval, cfg.FollowNodeHeight)
	if cfg.Operator != "" {
		go node.Worker.Run(ctx, cfg.ProcessInterval)
	}

	server := &http.Server{Addr: cfg.ListenAddress, Handler: e}
	serveErr := make(chan error, 1)
	go func() {
		log.Println("Listening on:", cfg.ListenAddress)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := utils.NewContextWithTimeout(ShutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	err = <-serveErr
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// status prints a summary of the contracts. The database must not be in use by a running server.
func status(ctx context.Context, c *cli.Command) (err error) {
	cfg, err := load(c)
	if err != nil {
		return err
	}

	node, err := cfg.Compile()
	if err != nil {
		return err
	}
	defer node.Close()

	height, err := node.Chain.Height()
	if err != nil {
		return err
	}
	counter, err := node.Processor.PaymentCounter(ctx)
	if err != nil {
		return err
	}
	collected, err := node.Processor.PlatformFeesCollected(ctx)
	if err != nil {
		return err
	}
	locked, err := node.Ledger.TotalLocked(ctx)
	if err != nil {
		return err
	}
	open, err := node.Ledger.OpenEscrowSum(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Height:", height)
	fmt.Println("Payments:", counter)
	fmt.Println("Platform fees:", decimal.FromUint64(collected))
	fmt.Println("Total locked:", decimal.FromUint64(locked))
	fmt.Println("Open escrow:", decimal.FromUint64(open))
	if locked != open {
		log.Println("WARNING|STATUS|ESCROW", "total locked does not match the open deposits")
	}
	return nil
}

func token(ctx context.Context, c *cli.Command) (err error) {
	cfg, err := load(c)
	if err != nil {
		return err
	}
	if cfg.JwtSecret == "" {
		return ErrMissingSecret
	}

	auth := router.Authenticator{Secret: []byte(cfg.JwtSecret)}
	signed, err := auth.Issue(chain.Principal(c.String("subject")), c.Duration("ttl"))
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Println(signed)
	return nil
}

var app = cli.Command{
	Name:  "sbtcpay",
	Usage: "sBTC payment processor and escrow ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML configuration",
			Value: "config.yaml",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "set debug mode",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the HTTP API, produce blocks and run the operator worker",
			Action: serve,
		},
		{
			Name:   "status",
			Usage:  "Print the state of both contracts",
			Action: status,
		},
		{
			Name:  "token",
			Usage: "Issue a bearer token for a principal",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "subject",
					Usage:    "Principal the token authenticates",
					Required: true,
				},
				&cli.DurationFlag{
					Name:  "ttl",
					Usage: "Token lifetime",
					Value: 24 * time.Hour,
				},
			},
			Action: token,
		},
	},
}

func main() {
	err := app.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
