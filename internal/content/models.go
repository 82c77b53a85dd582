package content

import (
	"math"
	"slices"
	"strings"
	"time"
)

// State represents the lifecycle of a content item.
type State string

const (
	StateDrafting   State = "DRAFTING"
	StateDrafted    State = "DRAFTED"
	StateRendering  State = "RENDERING"
	StateRendered   State = "RENDERED"
	StatePublishing State = "PUBLISHING"
	StatePublished  State = "PUBLISHED"
)

var allStates = []State{
	StateDrafting,
	StateDrafted,
	StateRendering,
	StateRendered,
	StatePublishing,
	StatePublished,
}

var transientStates = map[State]struct{}{
	StateDrafting:   {},
	StateRendering:  {},
	StatePublishing: {},
}

// AllStates returns every lifecycle state in pipeline order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState converts user input (any case) into a State.
func ParseState(value string) (State, bool) {
	candidate := State(strings.ToUpper(strings.TrimSpace(value)))
	if slices.Contains(allStates, candidate) {
		return candidate, true
	}
	return "", false
}

// IsTransient reports whether a job is expected to be outstanding in this state.
func (s State) IsTransient() bool {
	_, ok := transientStates[s]
	return ok
}

// IsTerminal reports whether no further stage can start from this state.
func (s State) IsTerminal() bool {
	return s == StatePublished
}

// Kind identifies the pipeline stage a job performs.
type Kind string

const (
	KindDraft   Kind = "draft"
	KindRender  Kind = "render"
	KindPublish Kind = "publish"
)

// ParseKind converts user input into a Kind.
func ParseKind(value string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := stageFor(k); ok {
		return k, true
	}
	return "", false
}

// stage describes the states one job kind moves an item through.
type stage struct {
	kind     Kind
	from     State
	active   State
	done     State
	rollback State
}

var stages = []stage{
	{kind: KindDraft, from: StateDrafting, active: StateDrafting, done: StateDrafted, rollback: StateDrafting},
	{kind: KindRender, from: StateDrafted, active: StateRendering, done: StateRendered, rollback: StateDrafted},
	{kind: KindPublish, from: StateRendered, active: StatePublishing, done: StatePublished, rollback: StateRendered},
}

func stageFor(kind Kind) (stage, bool) {
	for _, s := range stages {
		if s.kind == kind {
			return s, true
		}
	}
	return stage{}, false
}

// SourceState is the stable state a job of this kind may be started from.
// Draft jobs start from DRAFTING when a previous draft attempt failed.
func (k Kind) SourceState() State {
	s, _ := stageFor(k)
	return s.from
}

// ActiveState is the transient state an item holds while the job runs.
func (k Kind) ActiveState() State {
	s, _ := stageFor(k)
	return s.active
}

// CompletedState is where a successful job leaves the item.
func (k Kind) CompletedState() State {
	s, _ := stageFor(k)
	return s.done
}

// FailedState is where a failed job leaves the item.
func (k Kind) FailedState() State {
	s, _ := stageFor(k)
	return s.rollback
}

// KindForState returns the job kind running while an item is in a transient state.
func KindForState(state State) (Kind, bool) {
	for _, s := range stages {
		if s.active == state {
			return s.kind, true
		}
	}
	return "", false
}

// NextKind returns the job kind that advances an item out of a stable state.
func NextKind(state State) (Kind, bool) {
	for _, s := range stages {
		if s.from == state && !state.IsTransient() {
			return s.kind, true
		}
	}
	return "", false
}

// JobStatus represents the lifecycle of a job record.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Item is a single content request moving through draft, render and publish.
type Item struct {
	ID            string
	Prompt        string
	Draft         string
	State         State
	MediaRefs     []string
	PublishRef    string
	CostBreakdown map[Kind]float64
	ActiveJobID   string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTransient reports whether the item is mid-stage.
func (i *Item) IsTransient() bool {
	return i != nil && i.State.IsTransient()
}

// AddCost accumulates a reported stage cost. Negative and non-finite amounts are
// ignored so the breakdown never decreases. A sum that would overflow saturates
// at math.MaxFloat64, keeping the breakdown encodable.
func (i *Item) AddCost(kind Kind, amount float64) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return
	}
	if i.CostBreakdown == nil {
		i.CostBreakdown = make(map[Kind]float64, 3)
	}
	i.CostBreakdown[kind] = saturatingAdd(i.CostBreakdown[kind], amount)
}

// TotalCost sums the cost of every stage run so far.
func (i *Item) TotalCost() float64 {
	var total float64
	for _, v := range i.CostBreakdown {
		total = saturatingAdd(total, v)
	}
	return total
}

func saturatingAdd(a, b float64) float64 {
	if sum := a + b; !math.IsInf(sum, 0) {
		return sum
	}
	return math.MaxFloat64
}

// Clone returns a deep copy safe to mutate.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	out := *i
	out.MediaRefs = slices.Clone(i.MediaRefs)
	if i.CostBreakdown != nil {
		out.CostBreakdown = make(map[Kind]float64, len(i.CostBreakdown))
		for k, v := range i.CostBreakdown {
			out.CostBreakdown[k] = v
		}
	}
	return &out
}

// JobRecord associates a queue job with the item it acts on.
type JobRecord struct {
	JobID      string
	ItemID     string
	Kind       Kind
	Status     JobStatus
	Error      string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// IsPending reports whether the job has not produced an outcome yet.
func (j *JobRecord) IsPending() bool {
	return j != nil && j.Status == JobPending
}

// Filter narrows List results. Empty slices match everything.
type Filter struct {
	States  []State
	Exclude []State
}

// Stats summarizes store contents for status reporting.
type Stats struct {
	ByState     map[State]int
	PendingJobs int
	TotalCost   float64
}
