package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/tsawler/go-forward/tensor"
)

// ParamGroup is a set of parameters sharing one learning rate.
type ParamGroup struct {
	Params []*tensor.Tensor
	LR     float64
}

// OptimizerState is the serializable state of an optimizer.
type OptimizerState struct {
	Type       string               `json:"type"`       // "SGD", "Adam"
	Step       int64                `json:"step"`       // Updates applied so far
	GroupLRs   []float64            `json:"group_lrs"`  // Learning rate per group
	Parameters map[string]float64   `json:"parameters"` // Hyperparameters
	Buffers    map[string][]float32 `json:"buffers"`    // e.g. "m.3", "velocity.0"
}

// StatefulOptimizer is implemented by optimizers whose state can be checkpointed.
type StatefulOptimizer interface {
	Optimizer
	State() *OptimizerState
	LoadState(state *OptimizerState) error
}

func flattenGroups(groups []ParamGroup) []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, g := range groups {
		params = append(params, g.Params...)
	}
	return params
}

func copyBuffer(t *tensor.Tensor) []float32 {
	data := t.Data.([]float32)
	out := make([]float32, len(data))
	copy(out, data)
	return out
}

// SGD implements Stochastic Gradient Descent optimizer
type SGD struct {
	groups      []ParamGroup
	momentum    float64
	weightDecay float64
	dampening   float64
	nesterov    bool
	steps       int64
	velocities  map[*tensor.Tensor]*tensor.Tensor
	mutex       sync.RWMutex
}

// NewSGD creates a new SGD optimizer over a single parameter group
func NewSGD(parameters []*tensor.Tensor, lr float64, momentum float64, weightDecay float64, dampening float64, nesterov bool) *SGD {
	return NewSGDWithGroups([]ParamGroup{{Params: parameters, LR: lr}}, momentum, weightDecay, dampening, nesterov)
}

// NewSGDWithGroups creates a new SGD optimizer with per-group learning rates
func NewSGDWithGroups(groups []ParamGroup, momentum float64, weightDecay float64, dampening float64, nesterov bool) *SGD {
	return &SGD{
		groups:      groups,
		momentum:    momentum,
		weightDecay: weightDecay,
		dampening:   dampening,
		nesterov:    nesterov,
		velocities:  make(map[*tensor.Tensor]*tensor.Tensor),
	}
}

// Step performs a single optimization step
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	sgd.steps++

	for _, group := range sgd.groups {
		for _, param := range group.Params {
			if !param.RequiresGrad() || param.Grad() == nil {
				continue
			}

			grad := param.Grad()

			// Apply weight decay
			if sgd.weightDecay > 0 {
				weightDecayTerm, err := tensor.Mul(param, tensor.FromScalar(sgd.weightDecay, param.DType, param.Device))
				if err != nil {
					return fmt.Errorf("weight decay multiplication failed: %v", err)
				}
				grad, err = tensor.Add(grad, weightDecayTerm)
				if err != nil {
					return fmt.Errorf("weight decay addition failed: %v", err)
				}
			}

			// Apply momentum
			if sgd.momentum > 0 {
				velocity := sgd.velocities[param]
				if velocity == nil {
					v, err := tensor.Zeros(param.Shape, param.DType, param.Device)
					if err != nil {
						return fmt.Errorf("velocity initialization failed: %v", err)
					}
					velocity = v
					sgd.velocities[param] = velocity
				}

				// velocity = momentum * velocity + (1 - dampening) * grad
				momentumTerm, err := tensor.Mul(velocity, tensor.FromScalar(sgd.momentum, param.DType, param.Device))
				if err != nil {
					return fmt.Errorf("momentum term calculation failed: %v", err)
				}

				gradTerm, err := tensor.Mul(grad, tensor.FromScalar(1.0-sgd.dampening, param.DType, param.Device))
				if err != nil {
					return fmt.Errorf("gradient term calculation failed: %v", err)
				}

				newVelocity, err := tensor.Add(momentumTerm, gradTerm)
				if err != nil {
					return fmt.Errorf("velocity update failed: %v", err)
				}

				if err := velocity.SetData(newVelocity.Data); err != nil {
					return fmt.Errorf("velocity data update failed: %v", err)
				}

				if sgd.nesterov {
					// grad = grad + momentum * velocity
					nesterovTerm, err := tensor.Mul(newVelocity, tensor.FromScalar(sgd.momentum, param.DType, param.Device))
					if err != nil {
						return fmt.Errorf("nesterov term calculation failed: %v", err)
					}
					grad, err = tensor.Add(grad, nesterovTerm)
					if err != nil {
						return fmt.Errorf("nesterov update failed: %v", err)
					}
				} else {
					grad = newVelocity
				}
			}

			// param.data = param.data - lr * grad
			lrGrad, err := tensor.Mul(grad, tensor.FromScalar(group.LR, param.DType, param.Device))
			if err != nil {
				return fmt.Errorf("learning rate scaling failed: %v", err)
			}

			newData, err := tensor.Sub(param, lrGrad)
			if err != nil {
				return fmt.Errorf("parameter update failed: %v", err)
			}

			if err := param.SetData(newData.Data); err != nil {
				return fmt.Errorf("parameter data update failed: %v", err)
			}
		}
	}

	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(flattenGroups(sgd.groups))
}

// GetLR returns the learning rate of the first parameter group
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	if len(sgd.groups) == 0 {
		return 0
	}
	return sgd.groups[0].LR
}

// SetLR sets the learning rate of every parameter group
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	for i := range sgd.groups {
		sgd.groups[i].LR = lr
	}
}

// State captures SGD hyperparameters and momentum buffers
func (sgd *SGD) State() *OptimizerState {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()

	state := &OptimizerState{
		Type: "SGD",
		Step: sgd.steps,
		Parameters: map[string]float64{
			"momentum":     sgd.momentum,
			"weight_decay": sgd.weightDecay,
			"dampening":    sgd.dampening,
		},
		Buffers: make(map[string][]float32),
	}
	for _, g := range sgd.groups {
		state.GroupLRs = append(state.GroupLRs, g.LR)
	}
	for i, param := range flattenGroups(sgd.groups) {
		if v := sgd.velocities[param]; v != nil {
			state.Buffers[fmt.Sprintf("velocity.%d", i)] = copyBuffer(v)
		}
	}
	return state
}

// LoadState restores momentum buffers and learning rates
func (sgd *SGD) LoadState(state *OptimizerState) error {
	if state == nil || state.Type != "SGD" {
		return fmt.Errorf("expected SGD optimizer state")
	}

	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	if err := restoreGroupLRs(sgd.groups, state.GroupLRs); err != nil {
		return err
	}
	sgd.steps = state.Step
	for i, param := range flattenGroups(sgd.groups) {
		data, ok := state.Buffers[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		v, err := tensor.NewTensor(param.Shape, tensor.Float32, param.Device, data)
		if err != nil {
			return fmt.Errorf("velocity %d: %v", i, err)
		}
		sgd.velocities[param] = v
	}
	return nil
}

// Adam implements the Adam optimizer
type Adam struct {
	groups      []ParamGroup
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int64
	m           map[*tensor.Tensor]*tensor.Tensor // First moment estimates
	v           map[*tensor.Tensor]*tensor.Tensor // Second moment estimates
	mutex       sync.RWMutex
}

// NewAdam creates a new Adam optimizer over a single parameter group
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	return NewAdamWithGroups([]ParamGroup{{Params: parameters, LR: lr}}, beta1, beta2, eps, weightDecay)
}

// NewAdamWithGroups creates a new Adam optimizer with per-group learning rates
func NewAdamWithGroups(groups []ParamGroup, beta1, beta2, eps, weightDecay float64) *Adam {
	adam := &Adam{
		groups:      groups,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           make(map[*tensor.Tensor]*tensor.Tensor),
		v:           make(map[*tensor.Tensor]*tensor.Tensor),
	}

	// Initialize moment estimates
	for _, param := range flattenGroups(groups) {
		if param.RequiresGrad() {
			m, _ := tensor.Zeros(param.Shape, param.DType, param.Device)
			v, _ := tensor.Zeros(param.Shape, param.DType, param.Device)
			adam.m[param] = m
			adam.v[param] = v
		}
	}

	return adam
}

// Step performs a single optimization step
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++

	// Bias correction factors
	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, group := range adam.groups {
		for _, param := range group.Params {
			if !param.RequiresGrad() || param.Grad() == nil {
				continue
			}
			if err := adam.update(param, group.LR, bias1, bias2); err != nil {
				return err
			}
		}
	}

	return nil
}

func (adam *Adam) update(param *tensor.Tensor, lr, bias1, bias2 float64) error {
	grad := param.Grad()

	// Apply weight decay
	if adam.weightDecay > 0 {
		weightDecayTerm, err := tensor.Mul(param, tensor.FromScalar(adam.weightDecay, param.DType, param.Device))
		if err != nil {
			return fmt.Errorf("weight decay multiplication failed: %v", err)
		}
		grad, err = tensor.Add(grad, weightDecayTerm)
		if err != nil {
			return fmt.Errorf("weight decay addition failed: %v", err)
		}
	}

	m := adam.m[param]
	v := adam.v[param]
	if m == nil || v == nil {
		mNew, err := tensor.Zeros(param.Shape, param.DType, param.Device)
		if err != nil {
			return fmt.Errorf("first moment initialization failed: %v", err)
		}
		vNew, err := tensor.Zeros(param.Shape, param.DType, param.Device)
		if err != nil {
			return fmt.Errorf("second moment initialization failed: %v", err)
		}
		m, v = mNew, vNew
		adam.m[param] = m
		adam.v[param] = v
	}

	// m = beta1 * m + (1 - beta1) * grad
	beta1Term, err := tensor.Mul(m, tensor.FromScalar(adam.beta1, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("first moment beta1 term failed: %v", err)
	}
	gradTerm, err := tensor.Mul(grad, tensor.FromScalar(1.0-adam.beta1, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("first moment grad term failed: %v", err)
	}
	newM, err := tensor.Add(beta1Term, gradTerm)
	if err != nil {
		return fmt.Errorf("first moment update failed: %v", err)
	}

	// v = beta2 * v + (1 - beta2) * grad^2
	beta2Term, err := tensor.Mul(v, tensor.FromScalar(adam.beta2, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("second moment beta2 term failed: %v", err)
	}
	gradSquared, err := tensor.Mul(grad, grad)
	if err != nil {
		return fmt.Errorf("gradient squaring failed: %v", err)
	}
	gradSquaredTerm, err := tensor.Mul(gradSquared, tensor.FromScalar(1.0-adam.beta2, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("second moment grad squared term failed: %v", err)
	}
	newV, err := tensor.Add(beta2Term, gradSquaredTerm)
	if err != nil {
		return fmt.Errorf("second moment update failed: %v", err)
	}

	if err := m.SetData(newM.Data); err != nil {
		return fmt.Errorf("first moment data update failed: %v", err)
	}
	if err := v.SetData(newV.Data); err != nil {
		return fmt.Errorf("second moment data update failed: %v", err)
	}

	// Bias-corrected estimates
	mHat, err := tensor.Mul(newM, tensor.FromScalar(1.0/bias1, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("first moment bias correction failed: %v", err)
	}
	vHat, err := tensor.Mul(newV, tensor.FromScalar(1.0/bias2, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("second moment bias correction failed: %v", err)
	}

	// lr * m_hat / (sqrt(v_hat) + eps)
	vHatSqrt, err := tensor.Sqrt(vHat)
	if err != nil {
		return fmt.Errorf("second moment sqrt failed: %v", err)
	}
	denominator, err := tensor.Add(vHatSqrt, tensor.FromScalar(adam.eps, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("denominator computation failed: %v", err)
	}
	update, err := tensor.Div(mHat, denominator)
	if err != nil {
		return fmt.Errorf("update division failed: %v", err)
	}
	lrUpdate, err := tensor.Mul(update, tensor.FromScalar(lr, param.DType, param.Device))
	if err != nil {
		return fmt.Errorf("learning rate scaling failed: %v", err)
	}

	newData, err := tensor.Sub(param, lrUpdate)
	if err != nil {
		return fmt.Errorf("parameter update failed: %v", err)
	}
	if err := param.SetData(newData.Data); err != nil {
		return fmt.Errorf("parameter data update failed: %v", err)
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(flattenGroups(adam.groups))
}

// GetLR returns the learning rate of the first parameter group
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	if len(adam.groups) == 0 {
		return 0
	}
	return adam.groups[0].LR
}

// SetLR sets the learning rate of every parameter group
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	for i := range adam.groups {
		adam.groups[i].LR = lr
	}
}

// State captures Adam hyperparameters and moment estimates
func (adam *Adam) State() *OptimizerState {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()

	state := &OptimizerState{
		Type: "Adam",
		Step: adam.step,
		Parameters: map[string]float64{
			"beta1":        adam.beta1,
			"beta2":        adam.beta2,
			"eps":          adam.eps,
			"weight_decay": adam.weightDecay,
		},
		Buffers: make(map[string][]float32),
	}
	for _, g := range adam.groups {
		state.GroupLRs = append(state.GroupLRs, g.LR)
	}
	for i, param := range flattenGroups(adam.groups) {
		if m := adam.m[param]; m != nil {
			state.Buffers[fmt.Sprintf("m.%d", i)] = copyBuffer(m)
		}
		if v := adam.v[param]; v != nil {
			state.Buffers[fmt.Sprintf("v.%d", i)] = copyBuffer(v)
		}
	}
	return state
}

// LoadState restores moment estimates, step count and learning rates
func (adam *Adam) LoadState(state *OptimizerState) error {
	if state == nil || state.Type != "Adam" {
		return fmt.Errorf("expected Adam optimizer state")
	}

	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	if err := restoreGroupLRs(adam.groups, state.GroupLRs); err != nil {
		return err
	}
	adam.step = state.Step
	for i, param := range flattenGroups(adam.groups) {
		for prefix, moments := range map[string]map[*tensor.Tensor]*tensor.Tensor{"m": adam.m, "v": adam.v} {
			data, ok := state.Buffers[fmt.Sprintf("%s.%d", prefix, i)]
			if !ok {
				continue
			}
			t, err := tensor.NewTensor(param.Shape, tensor.Float32, param.Device, data)
			if err != nil {
				return fmt.Errorf("moment %s.%d: %v", prefix, i, err)
			}
			moments[param] = t
		}
	}
	return nil
}

func restoreGroupLRs(groups []ParamGroup, lrs []float64) error {
	if len(lrs) == 0 {
		return nil
	}
	if len(lrs) != len(groups) {
		return fmt.Errorf("state has %d parameter groups, optimizer has %d", len(lrs), len(groups))
	}
	for i := range groups {
		groups[i].LR = lrs[i]
	}
	return nil
}
