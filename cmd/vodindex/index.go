package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zsiec/vodindex/internal/segment"
	"github.com/zsiec/vodindex/internal/sidx"
	"github.com/zsiec/vodindex/internal/webm"
)

func newIndexCommand() *cobra.Command {
	var (
		container   string
		initPath    string
		indexPath   string
		initOffset  int64
		indexOffset int64
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Parse a local segment index and print its references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := os.ReadFile(indexPath)
			if err != nil {
				return err
			}
			var initData []byte
			if initPath != "" {
				if initData, err = os.ReadFile(initPath); err != nil {
					return err
				}
			}

			var ix *segment.Index
			switch container {
			case "webm":
				if initData == nil {
					return fmt.Errorf("--init is required for webm")
				}
				ix, err = webm.BuildIndex(initData, index, initOffset, segment.Options{})
			case "mp4":
				if initData != nil {
					info, err := sidx.ProbeInit(initData)
					if err != nil {
						return err
					}
					slog.Info("init segment", "timescale", info.Timescale, "handler", info.HandlerType)
				}
				ix, err = sidx.BuildIndex(index, indexOffset, segment.Options{})
			default:
				return fmt.Errorf("unknown container %q (want webm or mp4)", container)
			}
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, ix.References())
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReferences(ix))
			return nil
		},
	}
	cmd.Flags().StringVar(&container, "container", "webm", "Container format: webm or mp4")
	cmd.Flags().StringVar(&initPath, "init", "", "Init section file (WebM EBML header and Segment headers, or MP4 init segment)")
	cmd.Flags().StringVar(&indexPath, "index", "", "Index section file (WebM Cues or MP4 sidx)")
	cmd.Flags().Int64Var(&initOffset, "init-offset", 0, "Position of the init section in the resource")
	cmd.Flags().Int64Var(&indexOffset, "index-offset", 0, "Position of the index section in the resource")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print references as JSON")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func renderReferences(ix *segment.Index) string {
	refs := ix.References()
	rows := make([][]string, 0, len(refs))
	var known int64
	for _, r := range refs {
		end := "open"
		if !r.IsOpenEnded() {
			end = strconv.FormatInt(r.EndByte, 10)
			known += r.Size()
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Seq),
			strconv.FormatFloat(r.StartTime, 'f', 3, 64),
			strconv.FormatFloat(r.EndTime, 'f', 3, 64),
			strconv.FormatInt(r.StartByte, 10),
			end,
		})
	}
	var footer []string
	if len(refs) > 0 {
		last := refs[len(refs)-1]
		footer = []string{
			fmt.Sprintf("%d refs", len(refs)),
			"",
			strconv.FormatFloat(last.EndTime, 'f', 3, 64),
			"",
			fmt.Sprintf("%d bytes", known),
		}
	}
	return renderTable(tableSpec{
		columns: []column{
			{"Seq", true}, {"Start", true}, {"End", true}, {"Start byte", true}, {"End byte", true},
		},
		rows:   rows,
		footer: footer,
	})
}
