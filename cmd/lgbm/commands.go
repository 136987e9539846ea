package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/lgbmgo/dataio"
	"github.com/YuminosukeSato/lgbmgo/internal/demo"
	"github.com/YuminosukeSato/lgbmgo/lightgbm"
	"github.com/YuminosukeSato/lgbmgo/lightgbm/capi"
	"github.com/YuminosukeSato/lgbmgo/metrics"
	"github.com/YuminosukeSato/lgbmgo/pkg/envconfig"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// loadLibrary is replaced in tests.
var loadLibrary = capi.Load

func libraryOptions() ([]lightgbm.Option, error) {
	lib, err := loadLibrary()
	if err != nil {
		return nil, err
	}
	return []lightgbm.Option{lightgbm.WithLibrary(lib)}, nil
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a CSV, Parquet or Arrow file",
		Args:  cobra.NoArgs,
		RunE:  trainHandler,
	}
	cmd.Flags().String("data", "", "Training data file (.csv, .parquet, .arrow)")
	cmd.Flags().String("label", "label", "Label column")
	cmd.Flags().String("weight", "", "Optional weight column")
	cmd.Flags().Int("iterations", 100, "Number of boosting iterations")
	cmd.Flags().String("params", "", "YAML file of LightGBM parameters")
	cmd.Flags().StringArray("set", nil, "Parameter override key=value, repeatable")
	cmd.Flags().String("out", "model.txt", "Model output file")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// trainParams merges the --params file, --set overrides and LGBM_NUM_THREADS.
func trainParams(cmd *cobra.Command) (*lightgbm.Params, error) {
	params := lightgbm.NewParams()
	if path, _ := cmd.Flags().GetString("params"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		if params, err = lightgbm.ParseParamsYAML(f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	sets, _ := cmd.Flags().GetStringArray("set")
	for _, s := range sets {
		k, v, err := splitAssignment(s)
		if err != nil {
			return nil, err
		}
		if err := params.Set(k, v); err != nil {
			return nil, err
		}
	}
	if n := envconfig.NumThreads(); n > 0 {
		if _, ok := params.Get("num_threads"); !ok {
			params.SetInt("num_threads", int(n))
		}
	}
	return params, nil
}

func trainHandler(cmd *cobra.Command, _ []string) error {
	opts, err := libraryOptions()
	if err != nil {
		return err
	}
	params, err := trainParams(cmd)
	if err != nil {
		return err
	}
	dataPath, _ := cmd.Flags().GetString("data")
	label, _ := cmd.Flags().GetString("label")
	weight, _ := cmd.Flags().GetString("weight")
	iterations, _ := cmd.Flags().GetInt("iterations")
	out, _ := cmd.Flags().GetString("out")

	buf, err := dataio.Load(dataPath, dataio.Options{Label: label, Weight: weight})
	if err != nil {
		return err
	}
	ds, err := lightgbm.NewDataset(buf, opts...)
	if err != nil {
		return err
	}
	defer ds.Close()

	b, err := lightgbm.NewBooster(iterations, params, opts...)
	if err != nil {
		return err
	}
	defer b.Close()

	start := time.Now()
	if err := b.Train(ds); err != nil {
		return err
	}
	ran, err := b.CurrentIteration()
	if err != nil {
		return err
	}
	if err := b.SaveModel(out); err != nil {
		return err
	}

	renderTable(cmd.OutOrStdout(), []string{"ROWS", "FEATURES", "ITERATIONS", "DURATION", "MODEL"}, [][]string{{
		strconv.Itoa(buf.NumInstances()),
		strconv.Itoa(buf.NumFeatures()),
		fmt.Sprintf("%d/%d", ran, iterations),
		time.Since(start).Round(time.Millisecond).String(),
		out,
	}})
	return nil
}

// loadForScoring opens a model and the data to score with it.
func loadForScoring(cmd *cobra.Command, label string) (*lightgbm.Booster, *lightgbm.Dataset, error) {
	opts, err := libraryOptions()
	if err != nil {
		return nil, nil, err
	}
	modelPath, _ := cmd.Flags().GetString("model")
	dataPath, _ := cmd.Flags().GetString("data")

	buf, err := dataio.Load(dataPath, dataio.Options{Label: label})
	if err != nil {
		return nil, nil, err
	}
	b, err := lightgbm.LoadBoosterFromFile(modelPath, opts...)
	if err != nil {
		return nil, nil, err
	}
	ds, err := lightgbm.NewDataset(buf, opts...)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return b, ds, nil
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a data file with a saved model",
		Args:  cobra.NoArgs,
		RunE:  predictHandler,
	}
	cmd.Flags().String("model", "model.txt", "Model file")
	cmd.Flags().String("data", "", "Data file (.csv, .parquet, .arrow)")
	cmd.Flags().String("label", "", "Label column to leave out of the features")
	cmd.Flags().String("out", "", "Write scores as CSV to this file instead of stdout")
	cmd.Flags().String("histogram", "", "Write a PNG histogram of the scores")
	cmd.Flags().Int("bins", 20, "Histogram bins")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func predictHandler(cmd *cobra.Command, _ []string) error {
	label, _ := cmd.Flags().GetString("label")
	b, ds, err := loadForScoring(cmd, label)
	if err != nil {
		return err
	}
	defer b.Close()
	defer ds.Close()

	scores, err := b.Predict(ds)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return errors.Wrapf(err, "create %s", out)
		}
		defer f.Close()
		w = f
	}
	if err := writeScores(w, scores); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("histogram"); path != "" {
		bins, _ := cmd.Flags().GetInt("bins")
		if err := saveHistogram(path, scores, bins); err != nil {
			return err
		}
	}
	return nil
}

func writeScores(w io.Writer, scores []float32) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"score"}); err != nil {
		return err
	}
	for _, s := range scores {
		if err := cw.Write([]string{strconv.FormatFloat(float64(s), 'g', -1, 32)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func saveHistogram(path string, scores []float32, bins int) error {
	if bins <= 0 {
		return errors.NewValidationError("bins", "must be positive", bins)
	}
	values := make(plotter.Values, len(scores))
	for i, s := range scores {
		values[i] = float64(s)
	}
	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return errors.Wrap(err, "build histogram")
	}
	p := plot.New()
	p.Title.Text = "Prediction scores"
	p.X.Label.Text = "score"
	p.Y.Label.Text = "rows"
	p.Add(h)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a saved model against labelled data",
		Args:  cobra.NoArgs,
		RunE:  evalHandler,
	}
	cmd.Flags().String("model", "model.txt", "Model file")
	cmd.Flags().String("data", "", "Labelled data file")
	cmd.Flags().String("label", "label", "Label column")
	cmd.Flags().String("task", "binary", "binary or regression")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func evalHandler(cmd *cobra.Command, _ []string) error {
	label, _ := cmd.Flags().GetString("label")
	task, _ := cmd.Flags().GetString("task")
	if task != "binary" && task != "regression" {
		return errors.NewValidationError("task", "must be binary or regression", task)
	}
	b, ds, err := loadForScoring(cmd, label)
	if err != nil {
		return err
	}
	defer b.Close()
	defer ds.Close()

	scores, err := b.Predict(ds)
	if err != nil {
		return err
	}
	yTrue := metrics.Vec(ds.Buffer().Labels())
	yPred := metrics.Vec(scores)

	var rows [][]string
	add := func(name string, v float64, err error) {
		if err != nil {
			rows = append(rows, []string{name, "error: " + err.Error()})
			return
		}
		rows = append(rows, []string{name, strconv.FormatFloat(v, 'f', 6, 64)})
	}
	if task == "binary" {
		v, err := metrics.AUC(yTrue, yPred)
		add("auc", v, err)
		v, err = metrics.BinaryLogLoss(yTrue, yPred)
		add("binary_logloss", v, err)
		v, err = metrics.Accuracy(yTrue, metrics.Threshold(yPred, 0.5))
		add("accuracy", v, err)
	} else {
		v, err := metrics.RMSE(yTrue, yPred)
		add("rmse", v, err)
		v, err = metrics.MAE(yTrue, yPred)
		add("mae", v, err)
		v, err = metrics.R2Score(yTrue, yPred)
		add("r2", v, err)
	}
	renderTable(cmd.OutOrStdout(), []string{"METRIC", "VALUE"}, rows)
	return nil
}

func newImportanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Show feature importances of a saved model",
		Args:  cobra.NoArgs,
		RunE:  importanceHandler,
	}
	cmd.Flags().String("model", "model.txt", "Model file")
	cmd.Flags().String("type", "split", "split or gain")
	return cmd
}

func importanceHandler(cmd *cobra.Command, _ []string) error {
	modelPath, _ := cmd.Flags().GetString("model")
	typ, _ := cmd.Flags().GetString("type")
	var kind capi.FeatureImportanceType
	switch typ {
	case "split":
		kind = capi.FeatureImportanceSplit
	case "gain":
		kind = capi.FeatureImportanceGain
	default:
		return errors.NewValidationError("type", "must be split or gain", typ)
	}

	opts, err := libraryOptions()
	if err != nil {
		return err
	}
	model, err := os.ReadFile(modelPath)
	if err != nil {
		return errors.Wrapf(err, "read model %s", modelPath)
	}
	b, err := lightgbm.LoadBooster(string(model), opts...)
	if err != nil {
		return err
	}
	defer b.Close()
	imp, err := b.FeatureImportance(kind)
	if err != nil {
		return err
	}

	names := modelFeatureNames(string(model), len(imp))
	order := make([]int, len(imp))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return imp[order[a]] > imp[order[b]] })
	rows := make([][]string, len(order))
	for r, i := range order {
		rows[r] = []string{names[i], strconv.FormatFloat(imp[i], 'g', 6, 64)}
	}
	renderTable(cmd.OutOrStdout(), []string{"FEATURE", strings.ToUpper(kind.String())}, rows)
	return nil
}

// modelFeatureNames reads the feature_names line of a model, falling back to
// Column_i when it is missing or has the wrong length.
func modelFeatureNames(model string, n int) []string {
	for _, line := range strings.Split(model, "\n") {
		if rest, ok := strings.CutPrefix(line, "feature_names="); ok {
			if names := strings.Fields(rest); len(names) == n {
				return names
			}
			break
		}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Column_%d", i)
	}
	return names
}

func newDemoCmd() *cobra.Command {
	def := demo.Default()
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Train on random data, reload the model and score four rows",
		Args:  cobra.NoArgs,
		RunE:  demoHandler,
	}
	cmd.Flags().Int("rows", def.Rows, "Training rows")
	cmd.Flags().Int("features", def.Features, "Features per row")
	cmd.Flags().Int("iterations", def.Iterations, "Boosting iterations")
	cmd.Flags().Int64("seed", time.Now().UnixNano(), "Random seed")
	cmd.Flags().String("dir", "", "Directory for model.txt and train.parquet")
	return cmd
}

func demoHandler(cmd *cobra.Command, _ []string) error {
	opts, err := libraryOptions()
	if err != nil {
		return err
	}
	cfg := demo.Default()
	cfg.Rows, _ = cmd.Flags().GetInt("rows")
	cfg.Features, _ = cmd.Flags().GetInt("features")
	cfg.Iterations, _ = cmd.Flags().GetInt("iterations")
	cfg.Seed, _ = cmd.Flags().GetInt64("seed")
	cfg.Dir, _ = cmd.Flags().GetString("dir")
	cfg.Options = opts

	res, err := demo.Run(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Scores)
	if res.ModelPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "model: %s\ndata:  %s\n", res.ModelPath, res.TrainPath)
	}
	return nil
}
