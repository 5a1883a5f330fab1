// trienode是状态trie存储的运维工具：读取、写入和预取trie节点。
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the state database (empty for in-memory)",
	}
	cacheFlag = &cli.IntFlag{
		Name:  "cache",
		Usage: "Megabytes of memory allocated to the database cache",
	}
	cleanCacheFlag = &cli.IntFlag{
		Name:  "cache.clean",
		Usage: "Megabytes of memory allocated to the clean trie node cache",
	}
	noCacheFlag = &cli.BoolFlag{
		Name:  "nocache",
		Usage: "Shrink every shard cache to a single entry",
	}
	shardFlag = &cli.UintFlag{
		Name:  "shard",
		Usage: "Shard id within the layout",
	}
	shardVersionFlag = &cli.UintFlag{
		Name:  "shard.version",
		Usage: "Shard layout version",
	}
	viewFlag = &cli.BoolFlag{
		Name:  "view",
		Usage: "Read through the view shard cache",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Serve prometheus metrics on this address (e.g. 127.0.0.1:6060)",
	}
	vmoduleFlag = &cli.StringFlag{
		Name:  "vmodule",
		Usage: "Per-module verbosity: comma-separated list of <pattern>=<level> (e.g. rawdb/*=5)",
	}
)

var app = &cli.App{
	Name:  "trienode",
	Usage: "inspect and warm the sharded trie node store",
	Flags: []cli.Flag{
		configFileFlag,
		dataDirFlag,
		cacheFlag,
		cleanCacheFlag,
		noCacheFlag,
		verbosityFlag,
		vmoduleFlag,
		metricsAddrFlag,
	},
	Commands: []*cli.Command{
		getCommand,
		putCommand,
		prefetchCommand,
		statsCommand,
		dumpConfigCommand,
	},
	Before: func(ctx *cli.Context) error {
		if err := setupLogging(ctx); err != nil {
			return err
		}
		if addr := ctx.String(metricsAddrFlag.Name); addr != "" {
			metrics.Enable()
			startMetricsServer(addr)
		}
		return nil
	},
}

// setupLogging安装glog处理器，终端输出时启用颜色。
func setupLogging(ctx *cli.Context) error {
	output := io.Writer(os.Stderr)
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	if usecolor {
		output = colorable.NewColorable(os.Stderr)
	}
	glogger := log.NewGlogHandler(log.NewTerminalHandler(output, usecolor))
	glogger.Verbosity(log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)))
	if pattern := ctx.String(vmoduleFlag.Name); pattern != "" {
		if err := glogger.Vmodule(pattern); err != nil {
			return fmt.Errorf("invalid vmodule pattern: %v", err)
		}
	}
	log.SetDefault(log.NewLogger(glogger))
	return nil
}

// newMetricsMux提供两组指标：/metrics是trie缓存的prometheus指标，
// /debug/metrics/prometheus是存储和leveldb的go-ethereum指标。
func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/metrics/prometheus", prometheus.Handler(metrics.DefaultRegistry))
	return mux
}

// startMetricsServer在后台提供指标，进程退出时随之结束。
func startMetricsServer(addr string) {
	log.Info("Starting metrics server", "addr", fmt.Sprintf("http://%s/debug/metrics/prometheus", addr))
	go func() {
		if err := http.ListenAndServe(addr, newMetricsMux()); err != nil {
			log.Error("Failure in running metrics server", "err", err)
		}
	}()
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
