package alloc

// reclaim sweeps the byte range [from, to] that is about to be written
// and evicts anything still pointing into it: the consumer's in-use view
// first, then delivery tasks, then pending frames. Each eviction counts
// as a drop.
//
// Only the head of each stack is tested. Tasks are queued in
// address-monotonic order (modulo the wrap logic, which clears the
// affected entries itself), so once the head lies outside the range every
// newer entry does too.
//
// Runs in the receive context or under the IRQ mask; it does not gate the
// slides itself.
func (a *Allocator) reclaim(from, to int) error {
	if to > len(a.buf) {
		// Caller must wrap before claiming past the end.
		return errRange
	}

	if a.usedValid && a.usedMsg >= from && a.usedMsg <= to {
		a.usedValid = false
		a.countDrop()
	}

	for a.epNb > 0 && a.epTasks[0].off >= from && a.epTasks[0].off <= to {
		a.slideEp(0, nogate)
		a.countDrop()
	}

	for a.msgNb > 0 && a.msgTasks[0] >= from && a.msgTasks[0] <= to {
		a.slideMsg(0, nogate)
		a.countDrop()
	}

	return nil
}
