// Package insight produces a short narrative analysis of a query result.
package insight

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/infrastructure/generator"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/internal/log"
)

// sampleRowLimit bounds how many result rows are shown to the model.
const sampleRowLimit = 20

const systemPrompt = `You are a data analyst. Given a question, the SQL that answered it, and a summary of the results, reply with 2 to 4 short bullet points of insight. Mention concrete numbers. Do not restate the SQL.`

// Insighter asks the model to interpret a query result.
type Insighter struct {
	textGen     provider.TextGenerator
	temperature float64
	logger      *log.Logger
}

// NewInsighter creates an Insighter.
func NewInsighter(textGen provider.TextGenerator, temperature float64, logger *log.Logger) *Insighter {
	if logger == nil {
		logger = log.Default()
	}
	return &Insighter{
		textGen:     textGen,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate produces insight text for the result. An empty result returns
// a fixed message without a model call. Provider failures wrap
// generator.ErrGeneration; callers treat them as non-fatal.
func (i *Insighter) Generate(ctx context.Context, question, sql string, result query.Result) (string, error) {
	if result.RowCount() == 0 {
		return "The query returned no results.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "SQL:\n%s\n\n", sql)
	b.WriteString("Result summary:\n")
	b.WriteString(Summarize(result))

	req := provider.NewChatCompletionRequest([]provider.Message{
		provider.SystemMessage(systemPrompt),
		provider.UserMessage(b.String()),
	}).WithTemperature(i.temperature).WithMaxTokens(500)

	resp, err := i.textGen.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", generator.ErrGeneration, err)
	}

	text := strings.TrimSpace(resp.Content())
	if text == "" {
		return "", fmt.Errorf("%w: empty insight reply", generator.ErrGeneration)
	}
	return text, nil
}

// Summarize renders a compact textual summary of a result: row count,
// columns, per-column numeric statistics, and up to 20 sample rows.
func Summarize(result query.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: %d", result.RowCount())
	if result.Truncated() {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(result.Columns(), ", "))

	for _, stat := range numericStats(result) {
		fmt.Fprintf(&b, "%s: min=%s max=%s mean=%s sum=%s\n",
			stat.column,
			formatNumber(stat.min),
			formatNumber(stat.max),
			formatNumber(stat.mean),
			formatNumber(stat.sum),
		)
	}

	b.WriteString("Sample rows:\n")
	columns := result.Columns()
	for i, row := range result.Rows() {
		if i >= sampleRowLimit {
			break
		}
		b.WriteString("  ")
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", columns[j], v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type columnStat struct {
	column              string
	min, max, mean, sum float64
}

// numericStats computes stats per column over rows whose value in that
// column is numeric. Columns with no numeric values are skipped.
func numericStats(result query.Result) []columnStat {
	columns := result.Columns()
	rows := result.Rows()

	stats := make([]columnStat, 0, len(columns))
	for j, column := range columns {
		var (
			count    int
			sum      float64
			minValue = math.Inf(1)
			maxValue = math.Inf(-1)
		)
		for _, row := range rows {
			value, ok := toFloat(row[j])
			if !ok {
				continue
			}
			count++
			sum += value
			minValue = math.Min(minValue, value)
			maxValue = math.Max(maxValue, value)
		}
		if count == 0 {
			continue
		}
		stats = append(stats, columnStat{
			column: column,
			min:    minValue,
			max:    maxValue,
			mean:   sum / float64(count),
			sum:    sum,
		})
	}
	return stats
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
