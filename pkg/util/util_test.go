// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignValue(t *testing.T) {
	assert.Equal(t, uint32(64), AlignValue(uint32(1), 64))
	assert.Equal(t, uint32(64), AlignValue(uint32(64), 64))
	assert.Equal(t, uint32(128), AlignValue(uint32(65), 64))

	assert.Equal(t, 0, AlignValue8(0))
	assert.Equal(t, 8, AlignValue8(1))
	assert.Equal(t, 8, AlignValue8(8))
	assert.Equal(t, 16, AlignValue8(9))
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, uint64(1), NextPowerOfTwo(1))
	assert.Equal(t, uint64(2), NextPowerOfTwo(2))
	assert.Equal(t, uint64(4), NextPowerOfTwo(3))
	assert.Equal(t, uint64(1024), NextPowerOfTwo(1000))
	assert.True(t, IsPowerOfTwo(NextPowerOfTwo(777)))
	assert.False(t, IsPowerOfTwo(777))
}

func TestCRCTableDeterministic(t *testing.T) {
	t1 := NewCRCTable()
	t2 := NewCRCTable()
	data := []byte("pjoin checksum payload")

	h1 := t1.Finish(t1.Update(t1.Init(), data))
	h2 := t2.Finish(t2.Update(t2.Init(), data))
	assert.Equal(t, h1, h2)

	//incremental update equals one-shot update
	crc := t1.Init()
	crc = t1.Update(crc, data[:7])
	crc = t1.Update(crc, data[7:])
	assert.Equal(t, h1, t1.Finish(crc))

	assert.NotEqual(t, h1, t1.Finish(t1.Update(t1.Init(), data[:len(data)-1])))
}

func TestReentryLockReentrant(t *testing.T) {
	lock := NewReentryLock()
	require.False(t, lock.Held())

	lock.Lock()
	require.True(t, lock.Held())
	lock.Lock()
	require.True(t, lock.Held())
	lock.Unlock()
	//still held until the outermost unlock
	require.True(t, lock.Held())
	lock.Unlock()
	require.False(t, lock.Held())
}

func TestReentryLockExcludesOthers(t *testing.T) {
	lock := NewReentryLock()
	counter := 0

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				lock.Lock()
				lock.Lock()
				counter++
				lock.Unlock()
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, counter)
}

func TestReentryLockUnlockUnowned(t *testing.T) {
	lock := NewReentryLock()
	assert.Panics(t, func() { lock.Unlock() })
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	cfg, err := LoadConfig("../../etc/pjoin.toml")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.NumBlocks)
	assert.Equal(t, 64, cfg.Engine.BlockSize)
	assert.Equal(t, 1024, cfg.Engine.PstackNrooms)
	assert.Equal(t, 8192, cfg.Buffer.DestRowCap)
	assert.True(t, cfg.Debug.PrintStats)

	_, err = LoadConfig("no/such/file.toml")
	require.Error(t, err)
}

func TestHashBytesStable(t *testing.T) {
	a := HashUint64(12345)
	b := HashUint64(12345)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashUint64(12346))
}
