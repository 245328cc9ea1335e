// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/devtype"
	"github.com/daviszhen/pjoin/pkg/engine"
	"github.com/daviszhen/pjoin/pkg/host"
	"github.com/daviszhen/pjoin/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initDemoCmd()
}

var runCfg = &util.Config{}

///root cmd

var info = "pjoin"
var RootCmd = &cobra.Command{
	Use:          "pjoin",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use pjoin --help or -h")
	},
}

func initEngineOptions() {
	runCfg.Engine.NumBlocks = viper.GetInt("engine.numBlocks")
	runCfg.Engine.BlockSize = viper.GetInt("engine.blockSize")
	runCfg.Engine.PstackNrooms = viper.GetInt("engine.pstackNrooms")
	runCfg.Engine.NumDevices = viper.GetInt("engine.numDevices")
	runCfg.Buffer.DestRowCap = viper.GetInt("buffer.destRowCap")
	runCfg.Buffer.DestByteCap = viper.GetInt("buffer.destByteCap")
	runCfg.Buffer.DestExtraCap = viper.GetInt("buffer.destExtraCap")
	runCfg.Debug.PrintStats = viper.GetBool("debug.printStats")
	runCfg.Debug.DebugLog = viper.GetBool("debug.debugLog")
}

//demo cmd

var demoInfo = "run a sample three-way join workload"
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: demoInfo,
	Long:  demoInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		initDemoCfg()
		return runDemo()
	},
}

var demoOpt struct {
	srcRows   int
	slotMode  bool
	printRows int
}

func initDemoCfg() {
	initEngineOptions()
	demoOpt.srcRows = viper.GetInt("demo.srcRows")
	demoOpt.slotMode = viper.GetBool("demo.slotMode")
	demoOpt.printRows = viper.GetInt("demo.printRows")
}

func initDemoCmd() {
	RootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntVar(&demoOpt.srcRows, "src_rows", 1000, "number of source rows")
	demoCmd.Flags().BoolVar(&demoOpt.slotMode, "slot_mode", false, "emit slot-format results")
	demoCmd.Flags().IntVar(&demoOpt.printRows, "print_rows", 10, "result rows to print")

	viper.BindPFlag("demo.srcRows", demoCmd.Flags().Lookup("src_rows"))
	viper.BindPFlag("demo.slotMode", demoCmd.Flags().Lookup("slot_mode"))
	viper.BindPFlag("demo.printRows", demoCmd.Flags().Lookup("print_rows"))
}

// The demo joins a synthetic source against a hash-strategy dimension with a
// LEFT OUTER direction and a nest-loop relation with a RIGHT OUTER direction:
//
//	src(id, grp, val) LEFT JOIN dim(grp, weight) ON src.grp = dim.grp
//	                  RIGHT JOIN tag(val, label) ON src.val = tag.val
func runDemo() error {
	if runCfg.Debug.DebugLog {
		util.EnableDebugLog()
	}

	nSrc := demoOpt.srcRows
	srcRows := make([][]chunk.Datum, nSrc)
	srcNulls := make([][]bool, nSrc)
	for i := 0; i < nSrc; i++ {
		srcRows[i] = []chunk.Datum{uint64(i), uint64(i % 7), uint64(i % 10)}
		srcNulls[i] = []bool{false, false, false}
	}
	src := host.BuildRowSource(3, srcRows, srcNulls)

	//grp 6 has no dimension row, so the LEFT OUTER side emits NULL weights
	dim := host.InnerDef{
		NumCols:   2,
		Strategy:  engine.StrategyHash,
		LeftOuter: true,
		KeyCols:   []int{0},
	}
	for g := 0; g < 6; g++ {
		dim.Rows = append(dim.Rows, []chunk.Datum{uint64(g), uint64(100 + g)})
		dim.Nulls = append(dim.Nulls, []bool{false, false})
	}

	//vals 10..14 never occur in the source, so the RIGHT OUTER pass emits them
	tag := host.InnerDef{
		NumCols:    2,
		Strategy:   engine.StrategyNestLoop,
		RightOuter: true,
	}
	for v := 0; v < 15; v++ {
		tag.Rows = append(tag.Rows, []chunk.Datum{uint64(v), uint64(1000 + v)})
		tag.Nulls = append(tag.Nulls, []bool{false, false})
	}

	cat := devtype.NewCatalog()
	spec, err := engine.NewKeyJoinSpec(cat,
		[][]engine.KeyCond{
			{{OuterDepth: 0, OuterCol: 1, InnerCol: 0, TypeOid: devtype.OidInt8}},
			{{OuterDepth: 0, OuterCol: 2, InnerCol: 0, TypeOid: devtype.OidInt8}},
		},
		[]engine.ProjEntry{
			{Depth: 0, Col: 0},
			{Depth: 1, Col: 1},
			{Depth: 2, Col: 1},
		},
		nil)
	if err != nil {
		return err
	}

	drv := host.NewDriver(runCfg)
	res, err := drv.Run(context.Background(), &host.Query{
		Src:      src,
		Inners:   []host.InnerDef{dim, tag},
		Spec:     spec,
		DstNcols: 3,
		SlotMode: demoOpt.slotMode,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s %d rows in %d chunks\n",
		green("result:"), res.TotalRows(), res.NumChunks())
	if runCfg.Debug.PrintStats {
		fmt.Printf("%s source=%d visible=%d\n",
			yellow("scan:"), res.SourceNitems, res.OuterNitems)
		for d, n := range res.JoinedNitems {
			fmt.Printf("%s depth=%d nitems=%d\n", yellow("join:"), d+1, n)
		}
	}
	values, isnull := res.Rows()
	for i := 0; i < len(values) && i < demoOpt.printRows; i++ {
		fmt.Printf("  %v %v\n", values[i], isnull[i])
	}
	return nil
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "pjoin.toml"

func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			viper.SetConfigFile(fpath)
			err := viper.ReadInConfig()
			if err != nil {
				util.Error("viper load config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			return
		}
	}
	util.Warn("pjoin.toml does not exist, using defaults")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
