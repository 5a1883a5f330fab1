package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/olekukonko/tablewriter"
	"github.com/radiation-octopus/octopus-triestore/crypto"
	"github.com/radiation-octopus/octopus-triestore/entity"
	"github.com/radiation-octopus/octopus-triestore/entity/rawdb"
	"github.com/radiation-octopus/octopus-triestore/node"
	"github.com/radiation-octopus/octopus-triestore/operationdb"
	"github.com/radiation-octopus/octopus-triestore/operationdb/trie"
	"github.com/urfave/cli/v2"
)

var (
	chunkModeFlag = &cli.BoolFlag{
		Name:  "chunk",
		Usage: "Read in chunk caching mode (repeated reads are served from memory)",
	}
	rootFlag = &cli.StringFlag{
		Name:     "root",
		Usage:    "State root of the trie to prefetch",
		Required: true,
	}
	threadsFlag = &cli.IntFlag{
		Name:  "threads",
		Usage: "Number of prefetch io threads",
		Value: 4,
	}
	prefetchTimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Maximum time to wait for the prefetch queue to drain",
		Value: 10 * time.Second,
	}

	getCommand = &cli.Command{
		Action:    getNodes,
		Name:      "get",
		Usage:     "Retrieve trie nodes by hash through the shard cache",
		ArgsUsage: "<hash> [<hash>...]",
		Flags:     []cli.Flag{shardFlag, shardVersionFlag, viewFlag, chunkModeFlag},
	}
	putCommand = &cli.Command{
		Action:    putNodes,
		Name:      "put",
		Usage:     "Insert hex encoded trie nodes with reference count 1",
		ArgsUsage: "<blob> [<blob>...]",
		Flags:     []cli.Flag{shardFlag, shardVersionFlag},
	}
	prefetchCommand = &cli.Command{
		Action:    prefetchKeys,
		Name:      "prefetch",
		Usage:     "Prefetch trie keys under a state root and read them back",
		ArgsUsage: "<key> [<key>...]",
		Flags:     []cli.Flag{shardFlag, shardVersionFlag, viewFlag, rootFlag, threadsFlag, prefetchTimeoutFlag},
	}
	statsCommand = &cli.Command{
		Action: shardStats,
		Name:   "stats",
		Usage:  "Count the trie nodes stored for a shard",
		Flags:  []cli.Flag{shardFlag, shardVersionFlag},
	}
)

// parseHex解码带或不带0x前缀的十六进制参数。
func parseHex(arg string) ([]byte, error) {
	if !strings.HasPrefix(arg, "0x") && !strings.HasPrefix(arg, "0X") {
		arg = "0x" + arg
	}
	return hexutil.Decode(arg)
}

func parseHash(arg string) (entity.Hash, error) {
	b, err := parseHex(arg)
	if err != nil {
		return entity.Hash{}, err
	}
	if len(b) != common.HashLength {
		return entity.Hash{}, fmt.Errorf("invalid hash length %d", len(b))
	}
	return entity.BytesToHash(b), nil
}

func shardUIDFromFlags(ctx *cli.Context) entity.ShardUID {
	return entity.ShardUID{
		Version: uint32(ctx.Uint(shardVersionFlag.Name)),
		ShardID: uint32(ctx.Uint(shardFlag.Name)),
	}
}

func openNode(ctx *cli.Context) (*node.Node, error) {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return nil, err
	}
	return node.New(&cfg.Node)
}

func getNodes(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("no hash given")
	}
	stack, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer stack.Close()

	storage := stack.Tries().GetCachingStorage(shardUIDFromFlags(ctx), ctx.Bool(viewFlag.Name))
	if ctx.Bool(chunkModeFlag.Name) {
		storage.SetMode(entity.CachingChunk)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Hash", "Size", "Node"})
	for _, arg := range ctx.Args().Slice() {
		hash, err := parseHash(arg)
		if err != nil {
			return fmt.Errorf("invalid hash %q: %v", arg, err)
		}
		value, err := storage.RetrieveRawBytes(hash)
		if err != nil {
			log.Error("Failed to retrieve trie node", "hash", hash, "err", err)
			table.Append([]string{hash.Hex(), "-", err.Error()})
			continue
		}
		table.Append([]string{hash.Hex(), common.StorageSize(len(value)).String(), hexutil.Encode(value)})
	}
	table.Render()
	printStorageStats(os.Stdout, storage)
	return nil
}

func putNodes(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("no node given")
	}
	stack, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer stack.Close()

	var changes operationdb.TrieChanges
	for _, arg := range ctx.Args().Slice() {
		blob, err := parseHex(arg)
		if err != nil {
			return fmt.Errorf("invalid node %q: %v", arg, err)
		}
		changes.Insertions = append(changes.Insertions, operationdb.TrieRefcountChange{
			Hash:  crypto.Keccak256Hash(blob),
			Value: blob,
			RC:    1,
		})
	}
	var (
		uid     = shardUIDFromFlags(ctx)
		existed = make([]bool, len(changes.Insertions))
		fresh   int
	)
	for i, change := range changes.Insertions {
		if existed[i] = rawdb.HasTrieNode(stack.Store(), uid, change.Hash); !existed[i] {
			fresh++
		}
	}
	if err := stack.Tries().ApplyChanges(uid, changes); err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Hash", "Size", "Existed"})
	for i, change := range changes.Insertions {
		table.Append([]string{change.Hash.Hex(), common.StorageSize(len(change.Value)).String(), fmt.Sprint(existed[i])})
	}
	table.Render()
	log.Info("Inserted trie nodes", "shard", uid, "count", len(changes.Insertions), "new", fresh)
	return nil
}

func prefetchKeys(ctx *cli.Context) error {
	root, err := parseHash(ctx.String(rootFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid root: %v", err)
	}
	var keys [][]byte
	for _, arg := range ctx.Args().Slice() {
		key, err := parseHex(arg)
		if err != nil {
			return fmt.Errorf("invalid key %q: %v", arg, err)
		}
		keys = append(keys, key)
	}
	stack, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer stack.Close()

	var (
		storage = stack.Tries().GetCachingStorage(shardUIDFromFlags(ctx), ctx.Bool(viewFlag.Name))
		api     = trie.NewPrefetchAPI(storage)
		start   = time.Now()
	)
	api.StartIOThreads(ctx.Context, root, ctx.Int(threadsFlag.Name))
	for _, key := range keys {
		api.PrefetchTrieKey(key)
	}
	waitCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration(prefetchTimeoutFlag.Name))
	defer cancel()
	for api.Pending() > 0 && waitCtx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	log.Info("Prefetch queue drained", "keys", len(keys), "pending", api.Pending(), "elapsed", common.PrettyDuration(time.Since(start)))

	view, err := trie.NewTrieView(root, storage)
	if err != nil {
		storage.StopPrefetcher()
		api.StopAndJoin()
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value"})
	for i, key := range keys {
		value, err := view.Get(key)
		switch {
		case err != nil:
			table.Append([]string{ctx.Args().Get(i), err.Error()})
		case value == nil:
			table.Append([]string{ctx.Args().Get(i), "<missing>"})
		default:
			table.Append([]string{ctx.Args().Get(i), hexutil.Encode(value)})
		}
	}
	if err := api.StopAndJoin(); err != nil {
		return err
	}
	table.Render()
	printStorageStats(os.Stdout, storage)
	return nil
}

func shardStats(ctx *cli.Context) error {
	stack, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer stack.Close()

	var (
		uid   = shardUIDFromFlags(ctx)
		start = time.Now()
	)
	stats, err := rawdb.InspectShard(stack.Store(), uid)
	if err != nil {
		return err
	}
	log.Info("Inspected shard", "shard", uid, "elapsed", common.PrettyDuration(time.Since(start)))
	printShardStats(os.Stdout, uid, stats)
	return nil
}

func printShardStats(w io.Writer, uid entity.ShardUID, stats rawdb.ShardStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Statistic", "Value"})
	table.AppendBulk([][]string{
		{"Shard", uid.String()},
		{"Trie nodes", fmt.Sprint(stats.Nodes)},
		{"Total size", stats.Size.String()},
		{"Largest node", stats.Largest.String()},
		{"References", fmt.Sprint(stats.Refs)},
		{"Shared nodes", fmt.Sprint(stats.Shared)},
		{"Orphaned records", fmt.Sprint(stats.Orphaned)},
	})
	table.Render()
}

// printStorageStats输出节点读取计数和分片缓存状态。
func printStorageStats(w io.Writer, storage *trie.CachingStorage) {
	var (
		counts = storage.TrieNodesCount()
		cache  = storage.ShardCache()
	)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Statistic", "Value"})
	table.AppendBulk([][]string{
		{"Shard", storage.ShardUID().String()},
		{"Mode", storage.Mode().String()},
		{"DB reads", fmt.Sprint(counts.DBReads)},
		{"Memory reads", fmt.Sprint(counts.MemReads)},
		{"Shard cache entries", fmt.Sprint(cache.Len())},
		{"Shard cache size", common.StorageSize(cache.CurrentTotalSize()).String()},
		{"Pending deletions", fmt.Sprint(cache.DeletionsLen())},
		{"Chunk cache entries", fmt.Sprint(storage.ChunkCacheLen())},
	})
	table.Render()
}
