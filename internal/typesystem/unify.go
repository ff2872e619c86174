package typesystem

// Unify finds a substitution making t1 and t2 equal, or fails.
func Unify(t1, t2 Type) (Subst, error) {
	return unify(t1, t2)
}

func unify(t1, t2 Type) (Subst, error) {
	switch a := t1.(type) {
	case TVar:
		return bind(a, t2)
	case TCon:
		switch b := t2.(type) {
		case TVar:
			return bind(b, t1)
		case TCon:
			if a.Name == b.Name {
				return Subst{}, nil
			}
		}
	case TArrow:
		switch b := t2.(type) {
		case TVar:
			return bind(b, t1)
		case TArrow:
			s1, err := unify(a.From, b.From)
			if err != nil {
				return nil, err
			}
			s2, err := unify(a.To.Apply(s1), b.To.Apply(s1))
			if err != nil {
				return nil, err
			}
			return s1.Compose(s2), nil
		}
	case TGeneric:
		switch b := t2.(type) {
		case TVar:
			return bind(b, t1)
		case TGeneric:
			if a.Name != b.Name || len(a.Args) != len(b.Args) {
				break
			}
			s := Subst{}
			for i := range a.Args {
				si, err := unify(a.Args[i].Apply(s), b.Args[i].Apply(s))
				if err != nil {
					return nil, err
				}
				s = s.Compose(si)
			}
			return s, nil
		}
	}
	return nil, &UnifyError{Left: t1, Right: t2}
}

// bind maps a variable to a type, refusing infinite types (occurs check).
func bind(v TVar, t Type) (Subst, error) {
	if tv, ok := t.(TVar); ok && tv.Name == v.Name {
		return Subst{}, nil
	}
	for _, free := range t.FreeTypeVariables() {
		if free == v.Name {
			return nil, &UnifyError{Left: v, Right: t}
		}
	}
	return Subst{v.Name: t}, nil
}

// Solve unifies every constraint in order, accumulating a substitution.
// All failures are collected so the caller can report them as a batch.
func Solve(constraints []Constraint) (Subst, []*UnifyError) {
	s := Subst{}
	var errs []*UnifyError
	for _, c := range constraints {
		si, err := unify(c.Left.Apply(s), c.Right.Apply(s))
		if err != nil {
			if ue, ok := err.(*UnifyError); ok {
				ue.Span = c.Span
				errs = append(errs, ue)
			}
			continue
		}
		s = s.Compose(si)
	}
	return s, errs
}
