package utils

// JobPool bounds the number of jobs running at once
type JobPool struct {
	jobs chan struct{}
}

// Get blocks until a slot is free
func (p *JobPool) Get() {
	<-p.jobs
}

// Put returns a slot to the pool
func (p *JobPool) Put() {
	p.jobs <- struct{}{}
}

func NewJobPool(size int) (j *JobPool) {
	if size <= 0 {
		size = 1
	}
	j = &JobPool{jobs: make(chan struct{}, size)}
	for range size {
		j.jobs <- struct{}{}
	}
	return j
}
