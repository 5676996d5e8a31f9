// Package classifier loads the binary lesion model and runs inference on it.
package classifier

import (
	"context"
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/imageprocessor"
	"github.com/example/skin-check/internal/logging"
)

// Options configures the ONNX session.
type Options struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the runtime default.
	SharedLibraryPath string
	InputName         string
	OutputName        string
	// OutputShape is the shape of the model output, [1, 1] by default.
	OutputShape    []int64
	IntraOpThreads int
}

func (o Options) withDefaults() Options {
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
	if len(o.OutputShape) == 0 {
		o.OutputShape = []int64{1, 1}
	}
	return o
}

// ONNXClassifier wraps a loaded model. The session is created once and only
// read afterwards, so Classify may be called from many goroutines.
type ONNXClassifier struct {
	session     *ort.DynamicAdvancedSession
	outputShape ort.Shape
	logger      *zap.Logger
}

// NewONNXClassifier initializes the ONNX Runtime environment and loads the
// model at modelPath.
func NewONNXClassifier(modelPath string, opts Options, logger *zap.Logger) (*ONNXClassifier, error) {
	opts = opts.withDefaults()
	logger = logger.Named("classifier")

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, logging.NewOperationError("classifier.init_environment", "", err)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		ort.DestroyEnvironment() //nolint:errcheck
		return nil, logging.NewOperationError("classifier.session_options", "", err)
	}
	defer sessionOpts.Destroy() //nolint:errcheck

	if opts.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			ort.DestroyEnvironment() //nolint:errcheck
			return nil, logging.NewOperationError("classifier.session_options", "", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{opts.InputName}, []string{opts.OutputName}, sessionOpts)
	if err != nil {
		ort.DestroyEnvironment() //nolint:errcheck
		return nil, logging.NewOperationError("classifier.create_session", "", fmt.Errorf("%s: %w", modelPath, err))
	}

	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.String("input", opts.InputName),
		zap.String("output", opts.OutputName),
		zap.Int64s("output_shape", opts.OutputShape))

	return &ONNXClassifier{
		session:     session,
		outputShape: ort.NewShape(opts.OutputShape...),
		logger:      logger,
	}, nil
}

// Classify runs one forward pass and returns the first output value.
func (c *ONNXClassifier) Classify(ctx context.Context, tensor *imageprocessor.Tensor) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if tensor == nil || len(tensor.Data) == 0 || len(tensor.Data) != tensor.Len() {
		return 0, errors.New("classifier: malformed input tensor")
	}

	input, err := ort.NewTensor(ort.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return 0, logging.NewOperationError("classifier.input_tensor", "", err)
	}
	defer input.Destroy() //nolint:errcheck

	output, err := ort.NewEmptyTensor[float32](c.outputShape)
	if err != nil {
		return 0, logging.NewOperationError("classifier.output_tensor", "", err)
	}
	defer output.Destroy() //nolint:errcheck

	if err := c.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return 0, logging.NewOperationError("classifier.run", "", err)
	}

	data := output.GetData()
	if len(data) == 0 {
		return 0, errors.New("classifier: model returned no output")
	}
	return data[0], nil
}

// Close releases the session and the runtime environment.
func (c *ONNXClassifier) Close() {
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			c.logger.Warn("failed to destroy session", zap.Error(err))
		}
	}
	if err := ort.DestroyEnvironment(); err != nil {
		c.logger.Warn("failed to destroy onnx environment", zap.Error(err))
	}
}
