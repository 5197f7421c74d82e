// Package memory implements the memory manager: the frame table, the
// routing of access events into the configured replacement policy, the
// per-frame access history, and the monotonic reference sequence that
// aligns them. It is the sole owner of the frame table, resident sets,
// access history, sequence counter, and fault/replacement counters
// (spec §4.3); processes are referred to only by pointer identity.
package memory

import (
	"sync"

	"github.com/tickkernel/oskernelsim/internal/process"
	"github.com/tickkernel/oskernelsim/internal/replacement"
	"github.com/tickkernel/oskernelsim/internal/telemetry"
)

// AccessNote classifies an AccessEvent.
type AccessNote int

const (
	NoteLoad AccessNote = iota
	NoteAccess
	NoteEvict
	NoteAlloc
	NoteUnload
)

func (n AccessNote) String() string {
	switch n {
	case NoteLoad:
		return "load"
	case NoteAccess:
		return "access"
	case NoteEvict:
		return "evict"
	case NoteAlloc:
		return "alloc"
	case NoteUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// AccessEvent is one entry in a frame's append-only access history. Every
// sub-event produced by the same manager call (a hit, a load, an evict
// performed to make room for it) shares the same Seq.
type AccessEvent struct {
	Seq  int
	Time int
	Pid  string
	Page int
	Hit  bool
	Note AccessNote
}

// FrameOwner is the (pid, page) pair a frame currently holds, returned by
// snapshot getters. Pid is empty for an unoccupied frame.
type FrameOwner struct {
	Pid  string
	Page int
}

type residency struct {
	owner *process.Process
	page  int
}

// Manager owns the physical frame pool and routes every access through
// the configured replacement.Policy. All exported methods are safe for
// concurrent use; every state-changing call holds mu for its entire
// duration and invokes onUpdate only after releasing it (spec §5).
type Manager struct {
	mu sync.Mutex

	totalFrames            int
	preserveOnTermination  bool
	policy                 replacement.Policy
	logger                 *telemetry.Logger
	onUpdate               func()

	currentTime int
	seq         int

	// frames maps a resident frame index to its current owner/page.
	frames map[int]residency
	// owners maps a process to its resident pages and the frame each one
	// occupies; equivalent to the spec's "per-process resident set" with
	// the frame index carried alongside for O(1) access-page lookups.
	owners map[*process.Process]map[int]int

	// terminatedFrames is the preserve-on-termination overlay: frames
	// freed by unload_process when preserveOnTermination is set are
	// copied here for visualization, and never participate in
	// allocation or victim selection.
	terminatedFrames map[int]residency

	history map[int][]AccessEvent

	pageFaults   int
	replacements int
}

// New constructs a Manager with the given frame pool size and
// replacement policy. totalFrames must be >= 1; validation of that
// constraint is the caller's responsibility (engine construction, per
// spec §7), not this constructor's.
func New(totalFrames int, policy replacement.Policy, preserveOnTermination bool, logger *telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Manager{
		totalFrames:           totalFrames,
		preserveOnTermination: preserveOnTermination,
		policy:                policy,
		logger:                logger,
		frames:                make(map[int]residency, totalFrames),
		owners:                make(map[*process.Process]map[int]int),
		terminatedFrames:      make(map[int]residency),
		history:               make(map[int][]AccessEvent),
	}
}

// SetOnUpdate installs a callback invoked, without the manager lock
// held, after every state-changing operation. A panic from the callback
// is recovered and logged, never propagated (spec §4.3, §7).
func (m *Manager) SetOnUpdate(fn func()) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

// SetCurrentTime publishes the engine's clock, consulted by subsequent
// access_page/try_load_initial_page calls for recorded timestamps.
func (m *Manager) SetCurrentTime(t int) {
	m.mu.Lock()
	m.currentTime = t
	m.mu.Unlock()
}

// TryLoadInitialPage attempts to make page 0 of proc resident. It
// returns true if proc holds any resident page after the call. A
// process with PageCount <= 0 never touches the frame pool and always
// succeeds trivially.
//
// Admission is never preemptive: unlike access_page, this call never
// evicts another process's frame to make room. If the pool is already
// full it returns false and the caller (engine §4.4 phases 2/4/5) routes
// the process to BlockedMemory instead — this is the only reading of
// spec §4.3 consistent with scenario 6 (two same-tick arrivals
// contending for one frame; the second waits rather than preempting the
// first, and replacements stays 0). See DESIGN.md.
func (m *Manager) TryLoadInitialPage(proc *process.Process) bool {
	if proc.PageCount <= 0 {
		return true
	}

	m.mu.Lock()
	if _, ok := m.owners[proc][0]; ok {
		m.mu.Unlock()
		return true
	}

	if len(m.frames) >= m.totalFrames {
		m.mu.Unlock()
		return false
	}

	seq := m.nextSeq()
	m.pageFaults++
	frame := m.firstFreeFrame()
	m.allocate(frame, proc, 0)
	m.record(frame, seq, proc.Pid, 0, false, NoteLoad)
	m.mu.Unlock()
	m.notify()
	return true
}

// AccessPage looks up (proc, page). On a hit it records an access event
// and informs the policy; on a miss it increments the fault counter,
// evicting a victim if the pool is full, and either allocates a frame or
// — if the pool still lacks capacity after a refused eviction — performs
// no state change at all (spec §7's "memory exhaustion with no victim").
// Every call advances the sequence counter exactly once.
func (m *Manager) AccessPage(proc *process.Process, page int) {
	m.mu.Lock()
	seq := m.nextSeq()

	if frame, ok := m.owners[proc][page]; ok {
		proc.LastAccessTime = m.currentTime
		m.record(frame, seq, proc.Pid, page, true, NoteAccess)
		m.policy.PageAccessed(frame, proc, page, m.currentTime)
		m.mu.Unlock()
		m.notify()
		return
	}

	m.pageFaults++

	if len(m.frames) >= m.totalFrames {
		if !m.evictOne(seq) {
			m.logger.Warning().Log("page fault with no victim available; access is a no-op")
			m.mu.Unlock()
			m.notify()
			return
		}
	}

	if len(m.frames) >= m.totalFrames {
		// Eviction failed to free capacity; treat as the same no-op path.
		m.mu.Unlock()
		m.notify()
		return
	}

	frame := m.firstFreeFrame()
	m.allocate(frame, proc, page)
	proc.LastAccessTime = m.currentTime
	m.record(frame, seq, proc.Pid, page, false, NoteLoad)
	m.policy.PageAccessed(frame, proc, page, m.currentTime)
	m.mu.Unlock()
	m.notify()
}

// UnloadProcess frees every frame owned by proc. If preserveOnTermination
// is set, the freed mappings are moved to a view-only terminated overlay
// instead of being discarded, so post-mortem snapshots can still show
// last residency; that overlay never participates in allocation or
// victim selection (spec §4.3, §9). A process with no resident pages is
// a quiet no-op.
func (m *Manager) UnloadProcess(proc *process.Process) {
	m.mu.Lock()
	pages, ok := m.owners[proc]
	if !ok || len(pages) == 0 {
		m.mu.Unlock()
		return
	}

	seq := m.nextSeq()
	for page, frame := range pages {
		r := m.frames[frame]
		delete(m.frames, frame)
		m.policy.FrameFreed(frame)
		if m.preserveOnTermination {
			m.terminatedFrames[frame] = r
		}
		m.record(frame, seq, proc.Pid, page, false, NoteUnload)
	}
	delete(m.owners, proc)
	m.mu.Unlock()
	m.notify()
}

// FreeFrames returns the number of unoccupied frames in the active pool
// (the terminated overlay never counts against capacity).
func (m *Manager) FreeFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalFrames - len(m.frames)
}

// PageFaults returns the cumulative fault count.
func (m *Manager) PageFaults() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageFaults
}

// Replacements returns the cumulative eviction-for-replacement count.
func (m *Manager) Replacements() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replacements
}

// FrameStatusSnapshot returns, for every frame index in [0, totalFrames),
// whether it is currently occupied (including the preserve-on-termination
// overlay, which is a view only).
func (m *Manager) FrameStatusSnapshot() map[int]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]bool, m.totalFrames)
	for i := 0; i < m.totalFrames; i++ {
		_, active := m.frames[i]
		_, terminated := m.terminatedFrames[i]
		out[i] = active || terminated
	}
	return out
}

// FrameToPageSnapshot returns a deep copy of the frame->owner mapping,
// merging in the preserve-on-termination overlay (active residency wins
// on an index collision, which occurs when a preserved frame has since
// been reallocated to another page).
func (m *Manager) FrameToPageSnapshot() map[int]FrameOwner {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]FrameOwner, len(m.frames)+len(m.terminatedFrames))
	for frame, r := range m.terminatedFrames {
		out[frame] = FrameOwner{Pid: r.owner.Pid, Page: r.page}
	}
	for frame, r := range m.frames {
		out[frame] = FrameOwner{Pid: r.owner.Pid, Page: r.page}
	}
	return out
}

// FrameAccessHistorySnapshot returns a deep copy of every frame's access
// history.
func (m *Manager) FrameAccessHistorySnapshot() map[int][]AccessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int][]AccessEvent, len(m.history))
	for frame, events := range m.history {
		out[frame] = append([]AccessEvent(nil), events...)
	}
	return out
}

// MaxAccessSequence returns the highest sequence number issued so far, or
// 0 if none has been issued.
func (m *Manager) MaxAccessSequence() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// --- internal helpers; callers must hold mu ---

func (m *Manager) nextSeq() int {
	m.seq++
	return m.seq
}

// firstFreeFrame scans indices 0..totalFrames and returns the first
// absent one. This determinism is part of the allocation contract
// (spec §4.3).
func (m *Manager) firstFreeFrame() int {
	for i := 0; i < m.totalFrames; i++ {
		if _, ok := m.frames[i]; !ok {
			return i
		}
	}
	return -1
}

// evictOne asks the policy for a victim among the currently resident
// frames and, if one is named, frees it and records the eviction under
// seq. It reports whether a victim was evicted.
func (m *Manager) evictOne(seq int) bool {
	frameToPage := make(map[int]int, len(m.frames))
	for frame, r := range m.frames {
		frameToPage[frame] = r.page
	}
	victim := m.policy.SelectVictim(frameToPage, m.currentTime)
	if victim < 0 {
		return false
	}
	r, ok := m.frames[victim]
	if !ok {
		return false
	}
	delete(m.frames, victim)
	delete(m.owners[r.owner], r.page)
	m.policy.FrameFreed(victim)
	m.replacements++
	m.record(victim, seq, r.owner.Pid, r.page, false, NoteEvict)
	return true
}

// allocate inserts (proc, page) into both the frame table and the
// owner's resident set before firing frame_allocated, satisfying the
// eviction/allocation ordering invariant of spec §4.3.
func (m *Manager) allocate(frame int, proc *process.Process, page int) {
	m.frames[frame] = residency{owner: proc, page: page}
	if m.owners[proc] == nil {
		m.owners[proc] = make(map[int]int)
	}
	m.owners[proc][page] = frame
	m.policy.FrameAllocated(frame, proc, page)
}

func (m *Manager) record(frame, seq int, pid string, page int, hit bool, note AccessNote) {
	m.history[frame] = append(m.history[frame], AccessEvent{
		Seq:  seq,
		Time: m.currentTime,
		Pid:  pid,
		Page: page,
		Hit:  hit,
		Note: note,
	})
	level := telemetry.LevelDebug
	if note != NoteAccess {
		level = telemetry.LevelInfo
	}
	m.logger.Build(level).
		Int("seq", seq).
		Int("tick", m.currentTime).
		Int("frame", frame).
		Str("pid", pid).
		Int("page", page).
		Bool("hit", hit).
		Str("note", note.String()).
		Log("memory event")
}

// notify invokes the onUpdate callback, if any, without the manager lock
// held; a panic is recovered and logged, never propagated (spec §4.3,
// §7's "callback exceptions caught at the boundary").
func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onUpdate
	m.mu.Unlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Err().Any("recovered", r).Log("memory on_update callback panicked")
		}
	}()
	fn()
}
