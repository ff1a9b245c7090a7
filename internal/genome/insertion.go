package genome

// Insertion records one insertion event on the global timeline shared by
// every lineage. The list is append-only during simulation; the head is a
// zero-length sentinel so every node can be anchored to "the sentinel"
// before any real insertion has happened.
type Insertion struct {
	ID       int  // monotonically increasing append order, 0 is the sentinel
	Position int  // coordinate current at event time
	Length   int  // number of new sites inserted, >= 1 except the sentinel
	Appended bool // true iff the insertion occurred at the sequence tail

	Next *Insertion

	// PhyloNodes lists the ids of leaves that stopped evolving between
	// this event and the next one (i.e. this is the insertion they were
	// "frozen at").
	PhyloNodes []int
	// GenomeNodes is a per-event slot for internal-node ids. Nothing in
	// this module fills it: internal sequences get their gap columns
	// through BuildMasked like leaves do.
	GenomeNodes []int
}

// List is the singly linked, append-only chain of Insertion events shared
// by the whole simulation run.
type List struct {
	head   *Insertion
	tail   *Insertion
	nextID int
}

// NewList builds a list containing only the zero-length sentinel head.
func NewList() *List {
	sentinel := &Insertion{}
	return &List{head: sentinel, tail: sentinel}
}

// Head returns the sentinel head of the list.
func (l *List) Head() *Insertion { return l.head }

// Tail returns the most recently appended insertion (the sentinel if none
// has been appended yet).
func (l *List) Tail() *Insertion { return l.tail }

// Append records a new insertion event at the tail of the list and
// returns it. The caller must not mutate Position/Length/Appended
// afterward; PhyloNodes/GenomeNodes may still be appended to until the
// node they describe is frozen.
func (l *List) Append(position, length int, appended bool) *Insertion {
	l.nextID++
	ev := &Insertion{ID: l.nextID, Position: position, Length: length, Appended: appended}
	l.tail.Next = ev
	l.tail = ev
	return ev
}

// FreezeAt records that phylo node id stopped evolving at the list's
// current tail, i.e. it will see every insertion recorded so far but none
// recorded later.
func (l *List) FreezeAt(nodeID int) *Insertion {
	l.tail.PhyloNodes = append(l.tail.PhyloNodes, nodeID)
	return l.tail
}
