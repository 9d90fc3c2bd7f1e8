package utils_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"anarchy.ttfm/sbtcpay/utils"
	"github.com/stretchr/testify/assert"
)

func Test_JobPool(t *testing.T) {
	assertions := assert.New(t)

	const size = 3
	pool := utils.NewJobPool(size)

	var (
		running atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)
	for range 20 {
		pool.Get()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pool.Put()
			current := running.Add(1)
			for {
				old := peak.Load()
				if current <= old || peak.CompareAndSwap(old, current) {
					break
				}
			}
			running.Add(-1)
		}()
	}
	wg.Wait()
	assertions.LessOrEqual(peak.Load(), int64(size), "pool should bound concurrency")
}

func Test_MapInt(t *testing.T) {
	assertions := assert.New(t)

	assertions.Equal([]uint64{1, 2, 3}, utils.MapInt[int, uint64]([]int{1, 2, 3}))
	assertions.Empty(utils.MapInt[int, uint64](nil))
}

func Test_ConsumeChannel(t *testing.T) {
	c := make(chan int, 3)
	c <- 1
	c <- 2
	close(c)
	utils.ConsumeChannel(c)
}
