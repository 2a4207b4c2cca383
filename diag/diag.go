// Package diag provides coremap instrumentation: human-readable usage
// stats and a pprof-format allocation snapshot, for operators and
// `go tool pprof` respectively. Neither is exercised by the VM's core
// control flow (spec.md's fault/fork/execv paths never call into this
// package); it exists purely as an observability surface, the way a
// teaching kernel's maintainers would want to inspect what the
// allocator is doing without attaching a debugger.
package diag

import (
	"fmt"

	"github.com/google/pprof/profile"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/util"
)

// Stats summarizes coremap occupancy at a point in time.
type Stats struct {
	TotalFrames int
	FixedFrames int
	UsedFrames  int
	FreeFrames  int
}

// Snapshot reads cm's current occupancy into a Stats value.
func Snapshot(cm *coremap.Map) Stats {
	used := cm.UsedBytes() / util.PageSize
	total := cm.Size()
	fixed := cm.NumFixedPages()
	return Stats{
		TotalFrames: total,
		FixedFrames: fixed,
		UsedFrames:  used,
		FreeFrames:  total - used,
	}
}

// String renders s with locale-formatted thousands separators, via
// golang.org/x/text/message, the way an operator console would print
// a frame count that can run into the hundreds of thousands.
func (s Stats) String() string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("frames: %d total, %d fixed, %d used, %d free",
		s.TotalFrames, s.FixedFrames, s.UsedFrames, s.FreeFrames)
}

// entryInfo groups the runs that share a (chunk_size, owner_pid) pair
// so each group becomes one pprof sample instead of one per frame.
type entryInfo struct {
	chunkSize int
	ownerPid  int
	count     int
}

// Profile walks every coremap entry and builds a github.com/google/pprof
// profile.Profile snapshot, one sample per (chunk_size, owner_pid)
// group, with run count and byte size as the two sample values.
// Callers can write the result with (*profile.Profile).Write and open
// it with `go tool pprof`.
func Profile(cm *coremap.Map) *profile.Profile {
	groups := map[[2]int]*entryInfo{}
	order := [][2]int{}

	for i := 0; i < cm.Size(); i++ {
		e := cm.EntryAt(i)
		if e.IsFree() || !e.IsFirstChunk() {
			continue
		}
		key := [2]int{e.ChunkSize(), e.OwnerPid()}
		if groups[key] == nil {
			groups[key] = &entryInfo{chunkSize: e.ChunkSize(), ownerPid: e.OwnerPid()}
			order = append(order, key)
		}
		groups[key].count++
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "runs", Unit: "count"},
			{Type: "bytes", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "coremap_scan", Unit: "count"},
		Period:     1,
	}

	for _, key := range order {
		g := groups[key]
		fn := &profile.Function{
			ID:   uint64(len(p.Function) + 1),
			Name: fmt.Sprintf("pid=%d", g.ownerPid),
		}
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value: []int64{
				int64(g.count),
				int64(g.count * g.chunkSize * util.PageSize),
			},
			Label: map[string][]string{
				"chunk_size": {fmt.Sprintf("%d", g.chunkSize)},
			},
		})
	}

	return p
}
