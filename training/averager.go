package training

// Averager keeps the mean of the values added since the last Reset.
type Averager struct {
	sum   float64
	count int
}

func (a *Averager) Add(value float64) {
	a.sum += value
	a.count++
}

// Get returns the running mean. It is NaN before the first Add.
func (a *Averager) Get() float64 {
	return a.sum / float64(a.count)
}

func (a *Averager) Reset() {
	a.sum = 0
	a.count = 0
}
