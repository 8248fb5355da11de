package vm

import "log"

// Vector is an interrupt service routine.
type Vector func()

// Vectors is the full set of routines the controller dispatches to.
type Vectors struct {
	Timer     Vector
	Software  Vector
	PageFault Vector
	Reserved  Vector
}

// InterruptController dispatches interrupts synchronously. Routines are not
// re-entered: an interrupt raised while one is in service is dropped.
type InterruptController struct {
	vectors   Vectors
	inService string
	log       *log.Logger
}

func NewInterruptController(logger *log.Logger) *InterruptController {
	return &InterruptController{log: orDiscard(logger)}
}

// Install replaces every vector at once.
func (pic *InterruptController) Install(v Vectors) {
	pic.vectors = v
}

func (pic *InterruptController) Vectors() Vectors {
	return pic.vectors
}

func (pic *InterruptController) RaiseTimer() bool {
	return pic.raise("timer", pic.vectors.Timer)
}

func (pic *InterruptController) RaiseSoftware() bool {
	return pic.raise("software", pic.vectors.Software)
}

func (pic *InterruptController) RaisePageFault() bool {
	return pic.raise("page fault", pic.vectors.PageFault)
}

func (pic *InterruptController) RaiseReserved() bool {
	return pic.raise("reserved", pic.vectors.Reserved)
}

// InService reports whether a routine is currently running.
func (pic *InterruptController) InService() bool {
	return pic.inService != ""
}

func (pic *InterruptController) raise(name string, isr Vector) bool {
	if pic.inService != "" {
		pic.log.Printf("PIC: %s interrupt dropped while serving %s", name, pic.inService)
		return false
	}
	if isr == nil {
		return false
	}
	pic.inService = name
	defer func() { pic.inService = "" }()
	isr()
	return true
}
