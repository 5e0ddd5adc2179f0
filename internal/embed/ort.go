package embed

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OrtConfig locates the ONNX runtime library, model and tokenizer.
type OrtConfig struct {
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	ModelID       string
}

var ortInit struct {
	once sync.Once
	err  error
}

// OrtEncoder runs a sentence-transformer ONNX model and mean-pools the last
// hidden state into one vector.
type OrtEncoder struct {
	cfg     OrtConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewOrtEncoder loads the tokenizer and creates an inference session.
func NewOrtEncoder(cfg OrtConfig) (*OrtEncoder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, eris.New("embed: model_path and tokenizer_path are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 128
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}

	ortInit.once.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		ortInit.err = ort.InitializeEnvironment()
	})
	if ortInit.err != nil {
		return nil, eris.Wrap(ortInit.err, "embed: initialize onnxruntime")
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: load tokenizer %s", cfg.TokenizerPath)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"}, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: open model %s", cfg.ModelPath)
	}

	zap.L().Info("embed: onnx encoder ready",
		zap.String("model", cfg.ModelID),
		zap.Int("max_seq_len", cfg.MaxSeqLen),
	)
	return &OrtEncoder{cfg: cfg, tk: tk, session: session}, nil
}

// Encode tokenizes text, runs the model and returns the normalised mean of
// the token embeddings under the attention mask.
func (e *OrtEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := e.tk.EncodeSingle(Normalize(text), true)
	if err != nil {
		return nil, eris.Wrap(err, "embed: tokenize")
	}

	n := len(enc.Ids)
	if n > e.cfg.MaxSeqLen {
		n = e.cfg.MaxSeqLen
	}
	if n == 0 {
		return nil, eris.New("embed: empty token sequence")
	}
	ids := make([]int64, n)
	mask := make([]int64, n)
	types := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.Ids[i])
		mask[i] = 1
		if i < len(enc.AttentionMask) {
			mask[i] = int64(enc.AttentionMask[i])
		}
		if i < len(enc.TypeIds) {
			types[i] = int64(enc.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, eris.Wrap(err, "embed: input_ids tensor")
	}
	defer idsT.Destroy() //nolint:errcheck
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, eris.Wrap(err, "embed: attention_mask tensor")
	}
	defer maskT.Destroy() //nolint:errcheck
	typesT, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, eris.Wrap(err, "embed: token_type_ids tensor")
	}
	defer typesT.Destroy() //nolint:errcheck

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err = e.session.Run([]ort.Value{idsT, maskT, typesT}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, eris.Wrap(err, "embed: run model")
	}
	defer outputs[0].Destroy() //nolint:errcheck

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, eris.New("embed: unexpected output tensor type")
	}
	dims := hidden.GetShape()
	if len(dims) != 3 {
		return nil, eris.Errorf("embed: unexpected output rank %d", len(dims))
	}
	return meanPool(hidden.GetData(), mask, int(dims[1]), int(dims[2])), nil
}

// ModelID identifies the model in cache keys.
func (e *OrtEncoder) ModelID() string { return e.cfg.ModelID }

// Close releases the inference session.
func (e *OrtEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

func meanPool(data []float32, mask []int64, seq, hidden int) []float32 {
	out := make([]float32, hidden)
	var count float32
	for t := 0; t < seq && t < len(mask); t++ {
		if mask[t] == 0 {
			continue
		}
		row := data[t*hidden : (t+1)*hidden]
		for j, v := range row {
			out[j] += v
		}
		count++
	}
	if count > 0 {
		for j := range out {
			out[j] /= count
		}
	}
	l2Normalize(out)
	return out
}
