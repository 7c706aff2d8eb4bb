// Command classify runs the lesion classifier over image files and prints
// the ranked recognitions for each.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"

	"github.com/Brownie44l1/lesion-api/internal/assets"
	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/logging"
	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/Brownie44l1/lesion-api/internal/usecase"
)

type imageRecognizer interface {
	RecognizeImage(ctx context.Context, img image.Image) ([]classifier.Recognition, error)
}

type fileResult struct {
	Path         string                   `json:"path"`
	Recognitions []classifier.Recognition `json:"recognitions,omitempty"`
	Err          string                   `json:"error,omitempty"`
}

func main() {
	assetsDir := flag.String("assets", "./models", "directory holding the model and label files")
	modelFile := flag.String("model", "model.onnx", "model file inside the assets directory")
	labelsFile := flag.String("labels", "labels.txt", "label file inside the assets directory")
	inputSize := flag.Int("size", 224, "square model input size in pixels")
	libPath := flag.String("lib", os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"), "path to the onnxruntime shared library")
	workers := flag.Int("workers", 1, "concurrent forward passes")
	layout := flag.String("layout", "NCHW", "input tensor layout: NCHW or NHWC")
	asJSON := flag.Bool("json", false, "print one JSON object per image")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: classify [flags] image...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger, err := logging.NewLogger(*debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	tensorLayout, err := parseLayout(*layout)
	if err != nil {
		logger.Fatal("invalid layout", zap.Error(err))
	}

	engine := model.NewONNXEngine(model.ONNXOptions{SharedLibraryPath: *libPath, Workers: *workers})
	clf, err := classifier.New(assets.NewDirStore(*assetsDir), engine, *modelFile, *labelsFile, *inputSize,
		classifier.WithLogger(logger),
		classifier.WithLayout(tensorLayout),
	)
	if err != nil {
		engine.Close()
		logger.Fatal("failed to initialize classifier", zap.Error(err))
	}

	bar := pb.StartNew(len(paths))
	results := classifyFiles(context.Background(), clf, paths, *workers, bar.Increment)
	bar.Finish()

	clf.Close()
	engine.Close()

	if failed := printResults(os.Stdout, results, *asJSON); failed > 0 {
		logger.Warn("some images could not be classified", zap.Int("failed", failed), zap.Int("total", len(paths)))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func parseLayout(s string) (classifier.Layout, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NCHW":
		return classifier.LayoutNCHW, nil
	case "NHWC":
		return classifier.LayoutNHWC, nil
	default:
		return 0, fmt.Errorf("unsupported layout %q", s)
	}
}

// classifyFiles processes paths with up to workers goroutines. Results keep
// the order of paths; per-file failures are recorded, not returned.
func classifyFiles(ctx context.Context, rec imageRecognizer, paths []string, workers int, progress func() *pb.ProgressBar) []fileResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]fileResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = classifyFile(ctx, rec, paths[i])
				if progress != nil {
					progress()
				}
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func classifyFile(ctx context.Context, rec imageRecognizer, path string) fileResult {
	res := fileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	img, _, err := usecase.DecodeImage(data)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	recs, err := rec.RecognizeImage(ctx, img)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Recognitions = recs
	return res
}

// printResults writes one line per result and returns how many failed.
func printResults(w io.Writer, results []fileResult, asJSON bool) int {
	failed := 0
	enc := json.NewEncoder(w)
	for _, res := range results {
		if res.Err != "" {
			failed++
		}
		if asJSON {
			enc.Encode(res) //nolint:errcheck
			continue
		}
		switch {
		case res.Err != "":
			fmt.Fprintf(w, "%s: error: %s\n", res.Path, res.Err)
		case len(res.Recognitions) == 0:
			fmt.Fprintf(w, "%s: no confident result\n", res.Path)
		default:
			parts := make([]string, len(res.Recognitions))
			for i, r := range res.Recognitions {
				parts[i] = r.String()
			}
			fmt.Fprintf(w, "%s: %s\n", res.Path, strings.Join(parts, "; "))
		}
	}
	return failed
}
