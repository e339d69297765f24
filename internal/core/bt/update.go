package bt

// Update ticks the tree once. The root is only ticked while it is Running;
// once it settles on Success or Failure the stored state is returned without
// evaluating any node until Reset.
func (t *Tree) Update() State {
	root := t.Root()
	if root.state != StateRunning {
		return t.treeState
	}
	t.treeState = t.tick(root, t.blackboard)
	if t.treeState.Terminal() {
		t.emit(EventTreeSettled, TreeEvent{Tree: t.name, State: t.treeState})
	}
	return t.treeState
}

// Reset unfreezes a settled tree: active actions are stopped and every node
// goes back to Running and not started. Blackboard values are kept.
func (t *Tree) Reset() {
	for _, n := range t.nodes {
		if n.started {
			t.exit(n, t.blackboard)
		}
		n.resetRuntime()
	}
	t.treeState = StateRunning
}

// tick is the per-node state machine shared by every variant.
func (t *Tree) tick(n *Node, bb *Blackboard) State {
	if !n.started {
		t.enter(n, bb)
		n.started = true
	}
	n.state = t.evaluate(n, bb)
	if n.state.Terminal() {
		t.exit(n, bb)
		n.started = false
	}
	return n.state
}

func (t *Tree) enter(n *Node, bb *Blackboard) {
	switch n.kind {
	case KindAction:
		if n.action != nil {
			n.action.Start(bb)
		}
	case KindComposite:
		n.cursor = 0
		n.results = nil
	case KindDecorator:
		n.count = 0
	}
}

func (t *Tree) exit(n *Node, bb *Blackboard) {
	if n.kind == KindAction && n.action != nil {
		n.action.Stop(bb)
	}
}

func (t *Tree) evaluate(n *Node, bb *Blackboard) State {
	switch n.kind {
	case KindAction:
		if n.action == nil {
			return StateFailure
		}
		return n.action.Update(bb)
	case KindRoot:
		child, ok := t.index[n.child]
		if !ok {
			return StateFailure
		}
		return t.tick(child, bb)
	case KindDecorator:
		return t.decorate(n, bb)
	case KindComposite:
		switch n.policy {
		case PolicySequencer:
			return t.sequence(n, bb)
		case PolicySelector:
			return t.selectChild(n, bb)
		case PolicyParallel:
			return t.parallel(n, bb)
		}
	}
	return StateFailure
}

func (t *Tree) decorate(n *Node, bb *Blackboard) State {
	child, ok := t.index[n.child]
	if !ok {
		return StateFailure
	}
	st := t.tick(child, bb)

	switch n.decorator {
	case DecoratorPassthrough:
		return st
	case DecoratorInverter:
		switch st {
		case StateSuccess:
			return StateFailure
		case StateFailure:
			return StateSuccess
		}
		return st
	case DecoratorSucceeder:
		if st == StateRunning {
			return st
		}
		return StateSuccess
	case DecoratorFailer:
		if st == StateRunning {
			return st
		}
		return StateFailure
	case DecoratorRepeat:
		if st == StateRunning {
			return st
		}
		if st == StateFailure && n.flag {
			return StateFailure
		}
		n.count++
		if n.limit > 0 && n.count >= n.limit {
			return StateSuccess
		}
		// The child has exited; it is entered again on the next tick.
		return StateRunning
	case DecoratorRetry:
		if st != StateFailure {
			return st
		}
		n.count++
		if n.limit > 0 && n.count >= n.limit {
			return StateFailure
		}
		return StateRunning
	case DecoratorUntilFailure:
		switch st {
		case StateRunning:
			return st
		case StateFailure:
			return StateSuccess
		}
		n.count++
		if n.limit > 0 && n.count >= n.limit {
			return StateFailure
		}
		return StateRunning
	}
	return StateFailure
}

// sequence evaluates one child per tick starting at the cursor.
func (t *Tree) sequence(n *Node, bb *Blackboard) State {
	if len(n.children) == 0 {
		return t.policy.EmptySequencer
	}
	if n.cursor >= len(n.children) {
		n.cursor = 0
	}
	st := StateFailure
	if child, ok := t.index[n.children[n.cursor]]; ok {
		st = t.tick(child, bb)
	}
	switch st {
	case StateRunning:
		return StateRunning
	case StateFailure:
		n.cursor = 0
		return StateFailure
	}
	n.cursor++
	if n.cursor == len(n.children) {
		n.cursor = 0
		return StateSuccess
	}
	return StateRunning
}

// selectChild mirrors sequence with Success and Failure swapped.
func (t *Tree) selectChild(n *Node, bb *Blackboard) State {
	if len(n.children) == 0 {
		return t.policy.EmptySelector
	}
	if n.cursor >= len(n.children) {
		n.cursor = 0
	}
	st := StateFailure
	if child, ok := t.index[n.children[n.cursor]]; ok {
		st = t.tick(child, bb)
	}
	switch st {
	case StateRunning:
		return StateRunning
	case StateSuccess:
		n.cursor = 0
		return StateSuccess
	}
	n.cursor++
	if n.cursor == len(n.children) {
		n.cursor = 0
		return StateFailure
	}
	return StateRunning
}

// parallel ticks every unfinished child each tick. With the "all" policy one
// failure fails the node; with "one" a single success completes it. Children
// still running when the node settles are aborted.
func (t *Tree) parallel(n *Node, bb *Blackboard) State {
	if len(n.children) == 0 {
		return StateSuccess
	}
	if len(n.results) != len(n.children) {
		n.results = make([]State, len(n.children))
	}
	successes, failures := 0, 0
	for i, id := range n.children {
		if !n.results[i].Terminal() {
			st := StateFailure
			if child, ok := t.index[id]; ok {
				st = t.tick(child, bb)
			}
			n.results[i] = st
		}
		switch n.results[i] {
		case StateSuccess:
			successes++
		case StateFailure:
			failures++
		}
	}

	result := StateRunning
	if n.flag {
		if successes > 0 {
			result = StateSuccess
		} else if failures == len(n.children) {
			result = StateFailure
		}
	} else {
		if failures > 0 {
			result = StateFailure
		} else if successes == len(n.children) {
			result = StateSuccess
		}
	}
	if result.Terminal() {
		for _, c := range t.GetChildren(n) {
			t.abort(c, bb)
		}
		n.results = nil
	}
	return result
}

// abort stops an active subtree without producing a result.
func (t *Tree) abort(n *Node, bb *Blackboard) {
	if !n.started {
		return
	}
	for _, c := range t.GetChildren(n) {
		t.abort(c, bb)
	}
	t.exit(n, bb)
	n.resetRuntime()
}
