package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"github.com/axiomatic-ai/inferbert"
	"github.com/axiomatic-ai/inferbert/options"
	"github.com/axiomatic-ai/inferbert/pipelines"
	"github.com/axiomatic-ai/inferbert/util/fileutil"
)

var modelPath string
var inputPath string
var outputPath string
var sharedLibraryPath string
var batchSize int
var modelsDir string
var presetName string

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run a text classification pipeline on input data",
	Description: `Run expects a path to a file with input in .jsonl format. Each json line in the file must be of the format {"input": "input string"} to be processed.
				`,
	ArgsUsage: `
				--input: path to a .jsonl file or a folder with .jsonl files to process. If omitted, the input will be read from stdin.
				--output: path to a folder where to write the output. If omitted, the output will be sent to stdout.
				--model: model name or path to the .onnx model to load. The cli looks for models with this chain: first use the provided path. If the path does not exist, look for a model
				with this name at $HOME/inferbert/models. Finally, try to download the model from Huggingface and use it.
				--onnxruntimeSharedLibrary: path to the onnxruntime.so library, used when INFERBERT_BACKEND is set to ORT.
				`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Path to the model",
			Aliases:     []string{"p"},
			Destination: &modelPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path to the input data",
			Aliases:     []string{"i"},
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path to output",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "onnxruntimeSharedLibrary",
			Usage:       "Path to onnxruntime.so",
			Aliases:     []string{"s"},
			Destination: &sharedLibraryPath,
			Required:    false,
		},
		&cli.IntFlag{
			Name:        "batchSize",
			Usage:       "Number of inputs to process in a batch",
			Aliases:     []string{"b"},
			Destination: &batchSize,
			Required:    false,
			Value:       20,
		},
		&cli.StringFlag{
			Name:        "modelFolder",
			Usage:       "Folder where to store downloaded models. Falls back to $HOME/inferbert/models if not specified",
			Aliases:     []string{"f"},
			Destination: &modelsDir,
			Required:    false,
			Value:       "",
		},
	},
	Action: func(ctx *cli.Context) (err error) {
		session, err := newCliSession()
		if err != nil {
			return err
		}

		defer func() {
			err = errors.Join(err, session.Destroy())
		}()

		resolvedPath, err := resolveModelPath(modelPath, "")
		if err != nil {
			return err
		}

		pipe, err := session.NewTextClassificationPipeline(inferbert.TextClassificationConfig{
			ModelPath: resolvedPath,
			Name:      "cliPipeline",
		})
		if err != nil {
			return err
		}

		inputChannel := make(chan []input, 1000)
		processedChannel := make(chan []byte, 1000)
		errorsChannel := make(chan error, 1000)
		nWriteWorkers := 1
		nProcessWorkers := 1
		var processedWg, writeWg sync.WaitGroup

		for range nProcessWorkers {
			go processWithPipeline(&processedWg, inputChannel, processedChannel, errorsChannel, pipe)
			processedWg.Add(1)
		}

		var writers []struct {
			Writer io.WriteCloser
			Type   string
		}

		for i := range nWriteWorkers {
			var writer io.WriteCloser
			writerType := "stdout"

			if outputPath != "" {
				dest := fileutil.PathJoinSafe(outputPath, fmt.Sprintf("result-%d.jsonl", i))
				writer, err = fileutil.NewFileWriter(dest)
				if err != nil {
					return err
				}
				writerType = "file"
			} else {
				writer = os.Stdout
			}

			writers = append(writers, struct {
				Writer io.WriteCloser
				Type   string
			}{
				Writer: writer,
				Type:   writerType,
			})
			writeWg.Add(1)
			go writeOutputs(&writeWg, processedChannel, errorsChannel, writer)
		}

		defer func() {
			for _, writer := range writers {
				if writer.Type != "stdout" {
					err = errors.Join(err, writer.Writer.Close())
				}
			}
		}()

		// read inputs

		exists, err := fileutil.FileExists(inputPath)
		if err != nil {
			return err
		}
		exists = inputPath != "" && exists

		if exists {
			fileWalker := func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (toContinue bool, err error) {
				extension := filepath.Ext(info.Name())
				if extension == ".jsonl" {
					err := readInputs(reader, inputChannel)
					if err != nil {
						return false, err
					}
				}
				return true, nil
			}

			err := fileutil.Walk(ctx.Context, inputPath, fileWalker)
			if err != nil {
				return err
			}
		} else {
			if inputPath != "" {
				return fmt.Errorf("file %s does not exist", inputPath)
			}

			if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				// there is something to process on stdin
				err := readInputs(os.Stdin, inputChannel)
				if err != nil {
					return err
				}
			}
		}

		close(inputChannel)
		processedWg.Wait()
		close(processedChannel)
		close(errorsChannel)
		writeWg.Wait()
		return err
	},
}

var defaultSentences = []string{
	"This movie is disgustingly good !",
	"Director tried too much.",
}

var sentimentCommand = &cli.Command{
	Name:      "sentiment",
	Usage:     "Classify sentences with a pretrained sentiment model and print the result as a table",
	ArgsUsage: "[sentence ...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "preset",
			Usage:       "Name of the pretrained sentiment preset",
			Destination: &presetName,
			Value:       "distilbert-sst2",
		},
		&cli.StringFlag{
			Name:        "onnxruntimeSharedLibrary",
			Usage:       "Path to onnxruntime.so",
			Aliases:     []string{"s"},
			Destination: &sharedLibraryPath,
			Required:    false,
		},
		&cli.StringFlag{
			Name:        "modelFolder",
			Usage:       "Folder where to store downloaded models. Falls back to $HOME/inferbert/models if not specified",
			Aliases:     []string{"f"},
			Destination: &modelsDir,
			Required:    false,
			Value:       "",
		},
	},
	Action: func(ctx *cli.Context) (err error) {
		sentences := ctx.Args().Slice()
		if len(sentences) == 0 {
			sentences = defaultSentences
		}

		preset, err := inferbert.ResolvePreset(presetName)
		if err != nil {
			return err
		}
		if preset.NumClasses != 2 || preset.MultiLabel {
			return fmt.Errorf("preset %s is not a binary sentiment model", preset.Name)
		}

		session, err := newCliSession()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Destroy())
		}()

		resolvedPath, err := resolveModelPath(preset.Repo, preset.OnnxFilename)
		if err != nil {
			return err
		}

		// all class probabilities are needed to pick the sentiment, so the
		// pipeline runs in multi label mode with a softmax over the logits
		pipe, err := session.NewTextClassificationPipeline(inferbert.TextClassificationConfig{
			ModelPath:    resolvedPath,
			Name:         "sentiment",
			OnnxFilename: preset.OnnxFilename,
			Options: []inferbert.TextClassificationOption{
				pipelines.WithMultiLabel(),
				pipelines.WithSoftmax(),
				pipelines.WithExpectedClasses(preset.NumClasses),
			},
		})
		if err != nil {
			return err
		}

		output, err := pipe.RunPipeline(sentences)
		if err != nil {
			return err
		}

		records := make([]sentimentRecord, len(sentences))
		for i, classes := range output.ClassificationOutputs {
			probabilities := make([]float32, len(classes))
			for j, class := range classes {
				probabilities[j] = class.Score
			}
			records[i] = sentimentRecord{
				Sentence:  sentences[i],
				Sentiment: sentimentLabel(probabilities),
			}
		}
		return renderTable(os.Stdout, records)
	},
}

func main() {
	app := &cli.App{
		Name:     "inferbert",
		Usage:    "Bert text classification from the command line",
		Commands: []*cli.Command{runCommand, sentimentCommand},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// newCliSession builds a session honouring the backend environment variable,
// wiring the shared library flag through when the ORT backend is selected.
func newCliSession() (*inferbert.Session, error) {
	var sessionOptions []options.WithOption
	if sharedLibraryPath != "" {
		sessionOptions = append(sessionOptions, options.WithOnnxLibraryPath(sharedLibraryPath))
	}
	return inferbert.NewSession(sessionOptions...)
}

// resolveModelPath turns a model flag value into a local model directory.
// The chain is: an existing local path, a previously downloaded model in the
// models folder, and finally a fresh download from the hub.
func resolveModelPath(model string, onnxFilename string) (string, error) {
	if modelsDir == "" {
		userDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		modelsDir = fileutil.PathJoinSafe(userDir, "inferbert", "models")
	}

	ok, err := fileutil.FileExists(model)
	if err != nil {
		return "", err
	}
	if ok {
		return model, nil
	}

	downloadedModelName := strings.ReplaceAll(model, "/", "_")
	downloadedModelPath := fileutil.PathJoinSafe(modelsDir, downloadedModelName)
	ok, err = fileutil.FileExists(downloadedModelPath)
	if err != nil {
		return "", err
	}
	if ok {
		return downloadedModelPath, nil
	}

	if strings.Contains(model, ":") {
		return "", errors.New("filters with : are currently not supported")
	}
	if err := fileutil.CreateFile(modelsDir, true); err != nil {
		return "", err
	}
	downloadOptions := inferbert.NewDownloadOptions()
	downloadOptions.OnnxFilePath = onnxFilename
	return inferbert.DownloadModel(model, modelsDir, downloadOptions)
}

func writeOutputs(wg *sync.WaitGroup, processedChannel chan []byte, errorChannel chan error, writeTarget io.WriteCloser) {
	for processedChannel != nil || errorChannel != nil {
		select {
		case output, ok := <-processedChannel:
			if !ok {
				processedChannel = nil
				continue
			}
			_, err := writeTarget.Write(output)
			if err != nil {
				panic(err)
			}
			_, err = writeTarget.Write([]byte("\n"))
			if err != nil {
				panic(err)
			}
		case err, ok := <-errorChannel:
			if !ok {
				errorChannel = nil
				continue
			}
			if err != nil {
				_, err = os.Stderr.WriteString(err.Error())
				if err != nil {
					panic(err)
				}
			}
		}
	}
	wg.Done()
}

func processWithPipeline(wg *sync.WaitGroup, inputChannel chan []input, processedChannel chan []byte, errorsChannel chan error, p *pipelines.TextClassificationPipeline) {
	for inputBatch := range inputChannel {
		inputStrings := make([]string, len(inputBatch))
		for i := range len(inputBatch) {
			inputStrings[i] = inputBatch[i].Input
		}
		output, err := p.Run(inputStrings)
		if err != nil {
			errorsChannel <- err
		} else {
			batchOutputs := output.GetOutput()
			for i, batchOutput := range batchOutputs {
				out := inputBatch[i]
				out.Output = batchOutput
				outputBytes, marshallErr := jsoniter.Marshal(out)
				if marshallErr != nil {
					errorsChannel <- marshallErr
				} else {
					processedChannel <- outputBytes
				}
			}
		}
	}
	wg.Done()
}

func readInputs(inputSource io.Reader, inputChannel chan []input) error {
	inputBatch := make([]input, 0, 20)

	scanner := bufio.NewScanner(inputSource)
	for scanner.Scan() {
		var line input
		err := jsoniter.Unmarshal(scanner.Bytes(), &line)
		if err != nil {
			return err
		}
		inputBatch = append(inputBatch, line)
		if len(inputBatch) == batchSize {
			inputChannel <- inputBatch
			inputBatch = []input{}
		}
	}
	// flush
	if len(inputBatch) > 0 {
		inputChannel <- inputBatch
	}
	return nil
}

type input struct {
	Input  string `json:"input"`
	Output any    `json:"output"`
}
