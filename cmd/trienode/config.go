package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"github.com/radiation-octopus/octopus-triestore/node"
	"github.com/urfave/cli/v2"
)

var dumpConfigCommand = &cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	ArgsUsage:   "[dumpfile]",
	Description: `The dumpconfig command shows configuration values.`,
}

// 这些设置确保TOML键使用与Go结构字段相同的名称。
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type trienodeConfig struct {
	Node node.Config
}

func loadConfig(file string, cfg *trienodeConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// 将文件名添加到错误中。
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig依次应用默认值、配置文件和命令行参数。
func makeConfig(ctx *cli.Context) (trienodeConfig, error) {
	cfg := trienodeConfig{Node: node.DefaultConfig}
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	applyNodeFlags(ctx, &cfg.Node)
	return cfg, nil
}

func applyNodeFlags(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(cacheFlag.Name) {
		cfg.DatabaseCache = ctx.Int(cacheFlag.Name)
	}
	if ctx.IsSet(cleanCacheFlag.Name) {
		cfg.CleanCache = ctx.Int(cleanCacheFlag.Name)
	}
	if ctx.IsSet(noCacheFlag.Name) {
		cfg.Trie.NoCache = ctx.Bool(noCacheFlag.Name)
	}
}

func writeConfig(w io.Writer, cfg *trienodeConfig) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// dumpConfig是dumpconfig命令。
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	return writeConfig(dump, &cfg)
}
