package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/danielpatrickdp/rlops-agent/internal/eval"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
)

// #region source
// Source is the agent state a daily report is drawn from.
type Source interface {
	GetPolicyDrift() policy.DriftReport
	QTableSize() int
	Epsilon() float64
	LearningRate() float64
}

// #endregion source

// #region generate
// GenerateDailyReport snapshots src into a report row dated at now.
func GenerateDailyReport(ctx context.Context, src Source, now time.Time) DailyReport {
	_, span := otel.Tracer("github.com/danielpatrickdp/rlops-agent/internal/report").
		Start(ctx, "report.GenerateDailyReport")
	defer span.End()

	drift := src.GetPolicyDrift()
	return DailyReport{
		Date:               now.Format("2006-01-02"),
		DriftScore:         drift.DriftScore,
		TotalPolicyUpdates: drift.TotalUpdates,
		AvgReward:          drift.RecentAvgReward,
		QTableSize:         src.QTableSize(),
		ExplorationRate:    src.Epsilon(),
		LearningRate:       src.LearningRate(),
	}
}

// #endregion generate

// #region csv
// AppendCSV appends r to the CSV at path. The header is written only when
// the file is created by this call.
func AppendCSV(path string, r DailyReport) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(r.record()); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// LoadCSV reads every row from the report at path. A missing file yields an
// error wrapping os.ErrNotExist.
func LoadCSV(path string) ([]DailyReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses report rows. Columns are matched by header name.
func ReadCSV(r io.Reader) ([]DailyReport, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, h := range Header {
		if _, ok := idx[h]; !ok {
			return nil, fmt.Errorf("read report header: missing column %q", h)
		}
	}

	var rows []DailyReport
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read report line %d: %w", line, err)
		}
		row, err := parseRecord(rec, idx)
		if err != nil {
			return rows, fmt.Errorf("read report line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r DailyReport) record() []string {
	return []string{
		r.Date,
		formatFloat(r.DriftScore),
		strconv.Itoa(r.TotalPolicyUpdates),
		formatFloat(r.AvgReward),
		strconv.Itoa(r.QTableSize),
		formatFloat(r.ExplorationRate),
		formatFloat(r.LearningRate),
	}
}

func parseRecord(rec []string, idx map[string]int) (DailyReport, error) {
	var (
		r    DailyReport
		errs []error
	)
	field := func(name string) string { return rec[idx[name]] }
	float := func(name string) float64 {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	integer := func(name string) int {
		v, err := strconv.Atoi(field(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}

	r.Date = field("date")
	r.DriftScore = float("drift_score")
	r.TotalPolicyUpdates = integer("total_policy_updates")
	r.AvgReward = float("avg_reward")
	r.QTableSize = integer("q_table_size")
	r.ExplorationRate = float("exploration_rate")
	r.LearningRate = float("learning_rate")
	return r, errors.Join(errs...)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// #endregion csv

// #region trend-analysis
// TrendAnalysis compares the newest rows against older ones. Drift direction
// uses the last two rows. The reward label compares the mean of the last
// three rows against the first three and stays stable below six rows; it
// moves only when the means differ by more than ImprovementRatio times
// |older|, so a negative baseline still reads "improving" as rewards rise.
// Policy stability is volatile once the drift std dev reaches
// VolatileStdDev. Zero thresholds fall back to eval.DefaultEvalConfig.
func TrendAnalysis(rows []DailyReport, cfg eval.EvalConfig) Trend {
	if len(rows) < 2 {
		return Trend{Trend: TrendInsufficientData, Days: len(rows)}
	}
	def := eval.DefaultEvalConfig()
	if cfg.ImprovementRatio <= 0 {
		cfg.ImprovementRatio = def.ImprovementRatio
	}
	if cfg.VolatileStdDev <= 0 {
		cfg.VolatileStdDev = def.VolatileStdDev
	}

	last, prev := rows[len(rows)-1].DriftScore, rows[len(rows)-2].DriftScore
	driftTrend := DriftStable
	switch {
	case last > prev:
		driftTrend = DriftIncreasing
	case last < prev:
		driftTrend = DriftDecreasing
	}

	rewards := make([]float64, len(rows))
	drifts := make([]float64, len(rows))
	for i, r := range rows {
		rewards[i] = r.AvgReward
		drifts[i] = r.DriftScore
	}

	recent := mean(rewards[max(0, len(rewards)-3):])
	older := recent
	if len(rewards) >= 6 {
		older = mean(rewards[:3])
	}
	margin := cfg.ImprovementRatio * math.Abs(older)
	rewardTrend := RewardStable
	switch {
	case recent > older+margin:
		rewardTrend = RewardImproving
	case recent < older-margin:
		rewardTrend = RewardDeclining
	}

	stability := PolicyVolatile
	if stdDev(drifts) < cfg.VolatileStdDev {
		stability = PolicyStable
	}

	return Trend{
		DriftTrend:      driftTrend,
		RewardTrend:     rewardTrend,
		TotalDays:       len(rows),
		AvgDriftScore:   mean(drifts),
		AvgReward:       mean(rewards),
		PolicyStability: stability,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// #endregion trend-analysis
