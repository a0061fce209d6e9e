package kernels

// Shape heuristics. Each selector buckets on M first, then walks an ordered
// rule list inside the bucket; the first matching rule wins and every bucket
// ends in an unconditional rule, so selection is total for non-negative
// shapes. Rules are ordered most-specific first; reordering them changes
// results, so retuning edits thresholds in place rather than moving lines.
//
// Picks were tuned on decode (small M), prefill (mid M) and training-shaped
// (large M) problems; tiles grow with M and N, and the cooperative schedule
// takes over from pingpong at M >= 128.

func pick(kind Kind, tm, tn, cm, cn int, pingpong bool) Entry {
	cfg := Config{
		TileM: tm, TileN: tn, TileK: 128,
		ClusterM: cm, ClusterN: cn, ClusterK: 1,
		Pingpong: pingpong,
	}
	name := Name(kind, cfg)
	e, ok := registry[name]
	if !ok {
		panic("heuristic references unregistered kernel " + name)
	}
	return e
}

// SelectBatched picks a batched kernel for a [B,M,K]x[B,N,K] problem.
func SelectBatched(b, m, n, k int) Entry {
	switch {
	case m < 16:
		switch {
		case b <= 16 && n <= 2048 && k >= 2048:
			return pick(Batched, 64, 16, 1, 1, true)
		case b < 32 && k < 8192:
			return pick(Batched, 64, 32, 2, 1, true)
		case n >= 8192:
			return pick(Batched, 64, 128, 1, 2, true)
		default:
			return pick(Batched, 64, 64, 1, 1, true)
		}
	case m < 32:
		switch {
		case b <= 8 && n <= 4096:
			return pick(Batched, 64, 32, 1, 1, true)
		case k >= 4096:
			return pick(Batched, 64, 64, 2, 1, true)
		default:
			return pick(Batched, 64, 64, 1, 1, true)
		}
	case m < 64:
		switch {
		case n <= 1024:
			return pick(Batched, 64, 64, 1, 1, true)
		case b >= 32:
			return pick(Batched, 64, 128, 1, 1, true)
		default:
			return pick(Batched, 64, 128, 1, 2, true)
		}
	case m < 128:
		switch {
		case n <= 2048 && k <= 4096:
			return pick(Batched, 64, 128, 1, 1, true)
		default:
			return pick(Batched, 128, 128, 1, 1, true)
		}
	case m < 256:
		switch {
		case n <= 1024:
			return pick(Batched, 128, 128, 1, 1, false)
		default:
			return pick(Batched, 128, 128, 2, 1, false)
		}
	case m < 512:
		switch {
		case n >= 4096:
			return pick(Batched, 128, 256, 2, 1, false)
		default:
			return pick(Batched, 128, 128, 2, 1, false)
		}
	case m < 1024:
		switch {
		case n <= 2048:
			return pick(Batched, 128, 128, 1, 2, false)
		default:
			return pick(Batched, 128, 256, 1, 1, false)
		}
	default:
		switch {
		case b <= 4 && n >= 8192:
			return pick(Batched, 256, 128, 2, 1, false)
		case n <= 2048:
			return pick(Batched, 128, 128, 4, 1, false)
		default:
			return pick(Batched, 128, 256, 2, 1, false)
		}
	}
}

// SelectGrouped picks a grouped kernel. Arguments are the maxima of the
// per-group dimensions; one kernel serves all groups of a call.
func SelectGrouped(m, n, k int) Entry {
	switch {
	case m < 16:
		switch {
		case k >= 8192:
			return pick(Grouped, 64, 16, 1, 1, true)
		default:
			return pick(Grouped, 64, 32, 1, 1, true)
		}
	case m < 32:
		switch {
		case n >= 8192:
			return pick(Grouped, 64, 64, 1, 2, true)
		default:
			return pick(Grouped, 64, 32, 2, 1, true)
		}
	case m < 64:
		switch {
		case k <= 1024:
			return pick(Grouped, 64, 32, 1, 1, true)
		default:
			return pick(Grouped, 64, 64, 1, 1, true)
		}
	case m < 128:
		switch {
		case n <= 2048:
			return pick(Grouped, 64, 128, 1, 1, true)
		default:
			return pick(Grouped, 128, 128, 1, 1, true)
		}
	case m < 256:
		switch {
		case n >= 4096 && k >= 4096:
			return pick(Grouped, 128, 256, 2, 1, false)
		default:
			return pick(Grouped, 128, 128, 2, 1, false)
		}
	case m < 512:
		switch {
		case n <= 1024:
			return pick(Grouped, 128, 128, 1, 2, false)
		default:
			return pick(Grouped, 128, 256, 1, 1, false)
		}
	case m < 1024:
		switch {
		case k >= 8192:
			return pick(Grouped, 256, 128, 2, 1, false)
		default:
			return pick(Grouped, 128, 256, 2, 1, false)
		}
	default:
		switch {
		case n >= 4096:
			return pick(Grouped, 256, 256, 2, 1, false)
		default:
			return pick(Grouped, 256, 128, 4, 1, false)
		}
	}
}
