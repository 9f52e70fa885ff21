package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyops/twinmcp/pkg/embedding"
)

var embedCmd = &cobra.Command{
	Use:   "embed [file...]",
	Short: "Generate embeddings for text files",
	Long: `为每个文件生成一个分块并批量嵌入，文件路径作为分块 ID。
不带参数时从标准输入读取单个分块。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		chunks, err := readChunks(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		model, _ := cmd.Flags().GetString("model")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		outcome, err := a.embedder.GenerateEmbeddings(ctx, &embedding.Request{
			Chunks:    chunks,
			Model:     model,
			BatchSize: batchSize,
		})
		if err != nil {
			return err
		}

		report := embedReport{Failures: make([]string, 0, len(outcome.Failures))}
		for _, r := range outcome.Results {
			report.Results = append(report.Results, embedSummary{
				ChunkID:    r.ChunkID,
				Model:      r.Model,
				Dimensions: len(r.Embedding),
				Tokens:     r.Tokens,
				Cost:       r.Cost,
			})
		}
		for _, f := range outcome.Failures {
			report.Failures = append(report.Failures, f.Error())
		}
		if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
			stats := a.embedder.GetEmbeddingStats(time.Hour)
			report.Stats = &stats
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [file...]",
	Short: "Embed files and print the usage summary",
	Long: `嵌入给定文件 rounds 次后输出统计窗口内的用量汇总。
第二轮起的请求应命中缓存，可用来观察缓存命中率。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		chunks, err := readChunks(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		rounds, _ := cmd.Flags().GetInt("rounds")
		window, _ := cmd.Flags().GetDuration("window")

		for i := 0; i < rounds; i++ {
			outcome, err := a.embedder.GenerateEmbeddings(ctx, &embedding.Request{Chunks: chunks})
			if err != nil {
				return err
			}
			a.logger.Info("embedding round finished",
				"round", i+1,
				"results", len(outcome.Results),
				"failed_chunks", outcome.FailedChunks(),
			)
		}
		return writeJSON(cmd.OutOrStdout(), a.embedder.GetEmbeddingStats(window))
	},
}

type embedSummary struct {
	ChunkID    string  `json:"chunk_id"`
	Model      string  `json:"model"`
	Dimensions int     `json:"dimensions"`
	Tokens     int     `json:"tokens"`
	Cost       float64 `json:"cost"`
}

type embedReport struct {
	Results  []embedSummary   `json:"results"`
	Failures []string         `json:"failures"`
	Stats    *embedding.Stats `json:"stats,omitempty"`
}

func init() {
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(statsCmd)

	embedCmd.Flags().String("model", "", "Embedding model (defaults to embedding.model)")
	embedCmd.Flags().Int("batch-size", 0, "Chunks per provider call, capped at 100")
	embedCmd.Flags().Bool("stats", false, "Print the usage summary after embedding")

	statsCmd.Flags().Int("rounds", 2, "Number of times to embed the input")
	statsCmd.Flags().Duration("window", time.Hour, "Statistics window")
}

// readChunks 每个文件一个分块；没有文件时读取标准输入
func readChunks(stdin io.Reader, paths []string) ([]embedding.Chunk, error) {
	if len(paths) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []embedding.Chunk{{ID: "stdin", Content: string(data)}}, nil
	}

	chunks := make([]embedding.Chunk, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		chunks = append(chunks, embedding.Chunk{ID: path, Content: string(data)})
	}
	return chunks, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
