package checkpoints

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsawler/go-forward/tensor"
	"github.com/tsawler/go-forward/training"
)

// biasModel is a parameter holder satisfying training.Model.
type biasModel struct {
	params []*tensor.Tensor
	step   *training.GlobalStep
}

func newBiasModel(t *testing.T, step int, values ...float32) *biasModel {
	t.Helper()
	return &biasModel{
		params: []*tensor.Tensor{newWeight(t, []int{len(values)}, values)},
		step:   training.NewGlobalStep(step),
	}
}

func (m *biasModel) Forward(*training.ForwardInput) (*training.Prediction, error) {
	return nil, nil
}

func (m *biasModel) Backward(*training.Prediction) error {
	return nil
}

func (m *biasModel) Generate([]int32) (*training.Prediction, error) {
	return nil, nil
}

func (m *biasModel) Parameters() []*tensor.Tensor {
	return m.params
}

func (m *biasModel) GlobalStep() *training.GlobalStep {
	return m.step
}

func (m *biasModel) Train() {}

func (m *biasModel) Eval() {}

func (m *biasModel) IsTraining() bool {
	return true
}

// plainOptimizer has no checkpointable state beyond its learning rate.
type plainOptimizer struct {
	lr float64
}

func (o *plainOptimizer) Step() error {
	return nil
}

func (o *plainOptimizer) ZeroGrad() {}

func (o *plainOptimizer) GetLR() float64 {
	return o.lr
}

func (o *plainOptimizer) SetLR(lr float64) {
	o.lr = lr
}

func newTestStore(t *testing.T, format CheckpointFormat) (*Store, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return NewStore(Config{Directory: t.TempDir(), Format: format}, &out), &out
}

func TestStorePaths(t *testing.T) {
	store := NewStore(Config{Directory: "/ckpt", Format: FormatProto}, nil)

	weights, optim := store.Paths("forward", "")
	if weights != filepath.Join("/ckpt", "forward", "latest_weights.pb") || optim != filepath.Join("/ckpt", "forward", "latest_optim.pb") {
		t.Errorf("Unexpected latest paths %s %s", weights, optim)
	}
	weights, _ = store.Paths("forward", "forward_step10K")
	if weights != filepath.Join("/ckpt", "forward", "forward_step10K_weights.pb") {
		t.Errorf("Unexpected named path %s", weights)
	}
}

func TestStoreSaveLatestAndNamed(t *testing.T) {
	store, out := newTestStore(t, FormatJSON)
	model := newBiasModel(t, 10_000, 1, 2)
	opt := &plainOptimizer{lr: 1e-4}

	if err := store.Save("forward", model, opt, training.SaveOptions{Name: "forward_step10K", Silent: true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !store.Exists("forward", "") || !store.Exists("forward", "forward_step10K") {
		t.Error("Expected latest and named checkpoints")
	}
	if out.Len() != 0 {
		t.Errorf("Expected silent save, got %q", out.String())
	}

	if err := store.Save("forward", model, opt, training.SaveOptions{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"Saving to existing latest checkpoint...",
		"Saving latest weights: ",
		"Saving latest optimizer state: ",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output %q", want, text)
		}
	}
	if strings.Contains(text, "named") {
		t.Error("Expected no named checkpoint without a name")
	}
}

func TestStoreCreatingMessage(t *testing.T) {
	store, out := newTestStore(t, FormatJSON)
	if err := store.Save("forward", newBiasModel(t, 1, 0), &plainOptimizer{lr: 1}, training.SaveOptions{Name: "first"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Creating latest checkpoint...") || !strings.Contains(text, "Creating named checkpoint...") {
		t.Errorf("Unexpected output %q", text)
	}
}

func TestStoreRejectsHalfCheckpoint(t *testing.T) {
	store, _ := newTestStore(t, FormatJSON)
	weights, _ := store.Paths("forward", "")
	if err := os.MkdirAll(filepath.Dir(weights), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(weights, []byte("{}"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	err := store.Save("forward", newBiasModel(t, 1, 0), &plainOptimizer{lr: 1}, training.SaveOptions{Silent: true})
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("Expected half checkpoint error, got %v", err)
	}
	if store.Exists("forward", "") {
		t.Error("Expected checkpoint to stay incomplete")
	}
}

func TestStoreRestore(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatJSON, FormatProto} {
		t.Run(format.String(), func(t *testing.T) {
			store, _ := newTestStore(t, format)

			model := newBiasModel(t, 1234, 0.5, -0.5)
			if err := model.params[0].AccumulateGrad([]float32{1, -1}); err != nil {
				t.Fatalf("AccumulateGrad failed: %v", err)
			}
			opt := training.NewAdam(model.Parameters(), 5e-5, 0.9, 0.999, 1e-8, 0)
			if err := opt.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			if err := store.Save("forward", model, opt, training.SaveOptions{Silent: true}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			restored := newBiasModel(t, 0, 0, 0)
			restoredOpt := training.NewAdam(restored.Parameters(), 1, 0.9, 0.999, 1e-8, 0)
			ckpt, err := store.Restore("forward", "", restored, restoredOpt)
			if err != nil {
				t.Fatalf("Restore failed: %v", err)
			}

			if ckpt.TrainingState.Step != 1234 {
				t.Errorf("Expected step 1234, got %d", ckpt.TrainingState.Step)
			}
			got := restored.params[0].Data.([]float32)
			want := model.params[0].Data.([]float32)
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Weight %d: expected %v, got %v", i, want[i], got[i])
				}
			}
			if restoredOpt.GetLR() != 5e-5 {
				t.Errorf("Expected learning rate 5e-5, got %g", restoredOpt.GetLR())
			}
			state := restoredOpt.State()
			if state.Step != 1 || len(state.Buffers["m.0"]) != 2 {
				t.Errorf("Optimizer moments not restored: %+v", state)
			}
		})
	}
}

func TestStoreRestorePlainOptimizer(t *testing.T) {
	store, _ := newTestStore(t, FormatJSON)
	if err := store.Save("forward", newBiasModel(t, 7, 3), &plainOptimizer{lr: 2e-5}, training.SaveOptions{Name: "forward_step0K", Silent: true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	opt := &plainOptimizer{lr: 1}
	model := newBiasModel(t, 0, 0)
	if _, err := store.Restore("forward", "forward_step0K", model, opt); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if opt.lr != 2e-5 || model.params[0].Data.([]float32)[0] != 3 {
		t.Errorf("Unexpected restore result lr=%g weights=%v", opt.lr, model.params[0].Data)
	}

	if _, err := store.Restore("forward", "missing", model, opt); err == nil {
		t.Error("Expected error for missing checkpoint")
	}
	if _, err := store.Restore("forward", "", newBiasModel(t, 0, 0, 0), nil); err == nil {
		t.Error("Expected error for mismatched parameter shape")
	}
}
