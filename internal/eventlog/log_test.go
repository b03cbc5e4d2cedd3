package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtgsim/internal/domain"
)

func sampleLog(n int) *Log {
	l := New()
	for i := 0; i < n; i++ {
		ev := domain.NewEvent(int64(i), domain.PhaseRTGS, domain.EventSettledImmediate)
		ev.Amount = int64(100 * (i + 1))
		l.Append(ev)
	}
	return l
}

func TestAppendAssignsDenseSeq(t *testing.T) {
	l := sampleLog(3)
	assert.Equal(t, 3, l.Len())
	for i, ev := range l.Events() {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestPage(t *testing.T) {
	l := sampleLog(5)

	assert.Len(t, l.Page(0, 2), 2)
	assert.Equal(t, int64(3), l.Page(2, 2)[0].Seq)
	assert.Len(t, l.Page(4, 10), 1)
	assert.Nil(t, l.Page(5, 2))
	assert.Nil(t, l.Page(-1, 2))
	assert.Len(t, l.Page(0, 0), 5, "non-positive limit returns the rest")
}

func TestSince(t *testing.T) {
	l := sampleLog(4)

	assert.Len(t, l.Since(0), 4)
	got := l.Since(2)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Nil(t, l.Since(4))
	assert.Len(t, l.Since(-3), 4)
}

func TestChecksumStability(t *testing.T) {
	a := sampleLog(10)
	b := sampleLog(10)

	sumA, err := a.Checksum()
	assert.NoError(t, err)
	sumB, err := b.Checksum()
	assert.NoError(t, err)
	assert.Equal(t, sumA, sumB, "identical logs must hash identically")

	c := sampleLog(10)
	ev := domain.NewEvent(99, domain.PhaseRTGS, domain.EventQueued)
	c.Append(ev)
	sumC, err := c.Checksum()
	assert.NoError(t, err)
	assert.NotEqual(t, sumA, sumC)
}
