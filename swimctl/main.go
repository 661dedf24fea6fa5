package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/linkwire/swim/swim"
	"github.com/linkwire/swim/value"
	"github.com/linkwire/swim/warp"
)

const LocalVersion = "0.0.0-local"

// one shot commands give up after this timeout
const RequestTimeout = 30 * time.Second

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
}

func main() {
	usage := `Swim downlink control.

Node uris are absolute, e.g. ws://localhost:9001/house/kitchen
Bodies are json. A body that is not json is sent as text.

Usage:
    swimctl link <node_uri> <lane_uri> [--keep_alive] [--prio=<prio>] [options]
    swimctl sync <node_uri> <lane_uri> [--keep_alive] [--prio=<prio>] [options]
    swimctl list <node_uri> <lane_uri> [--keep_alive] [--prio=<prio>] [options]
    swimctl map <node_uri> <lane_uri> [--keep_alive] [--prio=<prio>]
        [--primary_key=<path>]
        [--sort_by=<path>]
        [options]
    swimctl command <node_uri> <lane_uri> <body> [options]
    swimctl get <node_uri> [options]
    swimctl put <node_uri> <body> [options]

Options:
    -h --help                    Show this screen.
    --version                    Show version.
    --keep_alive                 Relink after the connection is lost.
    --prio=<prio>                Link priority.
    --primary_key=<path>         Dotted field path that keys map entries.
    --sort_by=<path>             Dotted field path that orders map entries.
    --config=<config>            Yaml client settings.
    --jwt=<jwt>                  Authorize with a jwt.
    --jwt_prompt                 Read the jwt from the terminal.
    --metrics_addr=<addr>        Serve prometheus metrics, e.g. :9090`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RequireVersion())
	if err != nil {
		panic(err)
	}

	if link_, _ := opts.Bool("link"); link_ {
		link(opts, swim.LinkedDownlinkKind)
	} else if sync_, _ := opts.Bool("sync"); sync_ {
		link(opts, swim.SyncedDownlinkKind)
	} else if list_, _ := opts.Bool("list"); list_ {
		link(opts, swim.ListDownlinkKind)
	} else if map_, _ := opts.Bool("map"); map_ {
		link(opts, swim.MapDownlinkKind)
	} else if command_, _ := opts.Bool("command"); command_ {
		command(opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		get(opts)
	} else if put_, _ := opts.Bool("put"); put_ {
		put(opts)
	}
	glog.Flush()
}

func RequireVersion() string {
	if version := os.Getenv("SWIM_VERSION"); version != "" {
		return version
	}
	return LocalVersion
}

func newClient(ctx context.Context, opts docopt.Opts) *swim.Client {
	settings := swim.DefaultClientSettings()
	if config, err := opts.String("--config"); err == nil && config != "" {
		settings, err = swim.LoadClientSettings(config)
		if err != nil {
			panic(err)
		}
	}

	var jwt string
	if jwtAny := opts["--jwt"]; jwtAny != nil {
		jwt = jwtAny.(string)
	} else if jwtPrompt, _ := opts.Bool("--jwt_prompt"); jwtPrompt {
		fmt.Print("Enter jwt: ")
		jwtBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			panic(err)
		}
		jwt = string(jwtBytes)
		fmt.Printf("\n")
	}
	if jwt != "" {
		logClaims(jwt)
		settings.Credentials = value.Record("jwt", jwt)
	}

	if metricsAddr, err := opts.String("--metrics_addr"); err == nil && metricsAddr != "" {
		serveMetrics(ctx, metricsAddr)
	}

	client, err := swim.NewClient(ctx, settings)
	if err != nil {
		panic(err)
	}
	client.SetDelegate(&swim.ChannelCallbacks{
		OnConnect: func(info *swim.ChannelInfo) {
			glog.Infof("[ctl]connected %s\n", info.HostUri)
		},
		OnDisconnect: func(info *swim.ChannelInfo) {
			glog.Infof("[ctl]disconnected %s\n", info.HostUri)
		},
		OnAuthorize: func(info *swim.ChannelInfo) {
			glog.Infof("[ctl]authorized %s %s\n", info.HostUri, value.String(info.Session))
		},
		OnDeauthorize: func(info *swim.ChannelInfo) {
			glog.Infof("[ctl]deauthorized %s %s\n", info.HostUri, value.String(info.Session))
		},
	})
	return client
}

// the claims are logged for diagnosis only. The host verifies the jwt.
func logClaims(jwt string) {
	claims := gojwt.MapClaims{}
	if _, _, err := gojwt.NewParser().ParseUnverified(jwt, claims); err != nil {
		glog.Warningf("[ctl]jwt is not parseable (%s)\n", err)
		return
	}
	subject, _ := claims.GetSubject()
	expirationTime, _ := claims.GetExpirationTime()
	if expirationTime != nil && expirationTime.Before(time.Now()) {
		glog.Warningf("[ctl]jwt for %s expired at %s\n", subject, expirationTime)
	} else {
		glog.Infof("[ctl]jwt for %s\n", subject)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("[ctl]metrics error = %s\n", err)
		}
	}()
}

func parseBody(body string) value.Value {
	if v, err := value.Parse(body); err == nil {
		return v
	}
	return value.Text(body)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
}

func link(opts docopt.Opts, kind swim.DownlinkKind) {
	nodeUri, _ := opts.String("<node_uri>")
	laneUri, _ := opts.String("<lane_uri>")
	keepAlive, _ := opts.Bool("--keep_alive")

	ctx, cancel := signalContext()
	defer cancel()

	client := newClient(ctx, opts)
	defer client.Close()

	builder := client.Downlink().
		Node(nodeUri).
		Lane(laneUri).
		KeepAlive(keepAlive).
		OnLinked(func(downlink *swim.Downlink, response *warp.Envelope) {
			glog.Infof("[ctl]linked %s %s\n", downlink.NodeUri(), downlink.LaneUri())
		}).
		OnUnlinked(func(downlink *swim.Downlink, response *warp.Envelope) {
			fmt.Printf("unlinked %s\n", value.String(response.Body))
		}).
		OnClose(func(downlink *swim.Downlink) {
			cancel()
		})
	if prioStr, err := opts.String("--prio"); err == nil && prioStr != "" {
		prio, err := strconv.ParseFloat(prioStr, 64)
		if err != nil {
			fmt.Printf("Invalid prio (%s).\n", err)
			return
		}
		builder.Prio(prio)
	}

	var open func() error
	switch kind {
	case swim.LinkedDownlinkKind, swim.SyncedDownlinkKind:
		builder.OnEvent(func(downlink *swim.Downlink, message *warp.Envelope) {
			fmt.Printf("%s\n", value.String(message.Body))
		})
		open = func() error {
			var err error
			if kind == swim.LinkedDownlinkKind {
				_, err = builder.Link()
			} else {
				_, err = builder.Sync()
			}
			return err
		}
	case swim.ListDownlinkKind:
		var list *swim.ListDownlink
		builder.OnEvent(func(downlink *swim.Downlink, message *warp.Envelope) {
			if downlink.State() == swim.DownlinkSynced {
				fmt.Printf("%s\n", value.String(message.Body))
			}
		})
		builder.OnSynced(func(downlink *swim.Downlink, response *warp.Envelope) {
			list.ForEach(func(index int, v value.Value) {
				fmt.Printf("%d: %s\n", index, value.String(v))
			})
		})
		open = func() error {
			var err error
			list, err = builder.SyncList()
			return err
		}
	case swim.MapDownlinkKind:
		if primaryKey, err := opts.String("--primary_key"); err == nil && primaryKey != "" {
			builder.PrimaryKeyPath(primaryKey)
		}
		if sortBy, err := opts.String("--sort_by"); err == nil && sortBy != "" {
			builder.SortByPath(sortBy)
		}
		var m *swim.MapDownlink
		builder.OnEvent(func(downlink *swim.Downlink, message *warp.Envelope) {
			if downlink.State() == swim.DownlinkSynced {
				fmt.Printf("%s\n", value.String(message.Body))
			}
		})
		builder.OnSynced(func(downlink *swim.Downlink, response *warp.Envelope) {
			m.ForEach(func(key value.Value, v value.Value) {
				fmt.Printf("%s: %s\n", value.String(key), value.String(v))
			})
		})
		open = func() error {
			var err error
			m, err = builder.SyncMap()
			return err
		}
	}

	client.Dispatch(func() {
		if err := open(); err != nil {
			fmt.Printf("%s\n", err)
			cancel()
		}
	})

	<-ctx.Done()
}

// one shot request. The channel closes once the request is written and the channel idles.
func request(opts docopt.Opts, send func(ctx context.Context, cancel context.CancelFunc, client *swim.Client) error) {
	signalCtx, signalCancel := signalContext()
	defer signalCancel()
	ctx, cancel := context.WithTimeout(signalCtx, RequestTimeout)
	defer cancel()

	client := newClient(ctx, opts)
	defer client.Close()

	client.Dispatch(func() {
		if err := send(ctx, cancel, client); err != nil {
			fmt.Printf("%s\n", err)
			cancel()
		}
	})

	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		fmt.Printf("Request timeout.\n")
	}
}

func command(opts docopt.Opts) {
	nodeUri, _ := opts.String("<node_uri>")
	laneUri, _ := opts.String("<lane_uri>")
	body, _ := opts.String("<body>")

	request(opts, func(ctx context.Context, cancel context.CancelFunc, client *swim.Client) error {
		hostUri := swim.ExtractHostUri(nodeUri)
		if hostUri == "" {
			return fmt.Errorf("Node uri must be absolute (%s).", nodeUri)
		}
		// the idle close follows the write
		client.Host(hostUri).SetDelegate(&swim.ChannelCallbacks{
			OnDisconnect: func(info *swim.ChannelInfo) {
				cancel()
			},
		})
		return client.Command(nodeUri, laneUri, parseBody(body))
	})
}

func get(opts docopt.Opts) {
	nodeUri, _ := opts.String("<node_uri>")

	request(opts, func(ctx context.Context, cancel context.CancelFunc, client *swim.Client) error {
		return client.Get(nodeUri, func(body value.Value) {
			fmt.Printf("%s\n", value.String(body))
			cancel()
		})
	})
}

func put(opts docopt.Opts) {
	nodeUri, _ := opts.String("<node_uri>")
	body, _ := opts.String("<body>")

	request(opts, func(ctx context.Context, cancel context.CancelFunc, client *swim.Client) error {
		return client.Put(nodeUri, parseBody(body), func(body value.Value) {
			fmt.Printf("%s\n", value.String(body))
			cancel()
		})
	})
}
