package memory

import (
	"context"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/domain/cash"
)

// RegisterRepo implements cash.Repository.
type RegisterRepo struct{ s *Store }

// Registers returns the cash register repository.
func (s *Store) Registers() *RegisterRepo { return &RegisterRepo{s: s} }

func (r *RegisterRepo) GetOpen(ctx context.Context, storeID id.ID) (cash.Register, error) {
	var out cash.Register
	err := r.s.do(ctx, func(st *state) error {
		for _, reg := range st.registers {
			if reg.StoreID == storeID && reg.IsOpen {
				out = reg
				return nil
			}
		}
		return apperror.NewNotFound("open cash register", storeID.String())
	})
	return out, err
}

func (r *RegisterRepo) GetOpenForUpdate(ctx context.Context, storeID id.ID) (cash.Register, error) {
	return r.GetOpen(ctx, storeID)
}

func (r *RegisterRepo) Get(ctx context.Context, registerID id.ID) (cash.Register, error) {
	var out cash.Register
	err := r.s.do(ctx, func(st *state) error {
		reg, ok := st.registers[registerID]
		if !ok {
			return apperror.NewNotFound("cash register", registerID.String())
		}
		out = reg
		return nil
	})
	return out, err
}

func (r *RegisterRepo) GetForUpdate(ctx context.Context, registerID id.ID) (cash.Register, error) {
	return r.Get(ctx, registerID)
}

func (r *RegisterRepo) Create(ctx context.Context, reg *cash.Register) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.registers {
			if other.StoreID == reg.StoreID && other.IsOpen {
				return apperror.NewAlreadyOpen(reg.StoreID.String())
			}
		}
		if id.IsNil(reg.ID) {
			reg.ID = id.New()
		}
		st.registers[reg.ID] = *reg
		return nil
	})
}

func (r *RegisterRepo) Update(ctx context.Context, reg cash.Register) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.registers[reg.ID]; !ok {
			return apperror.NewNotFound("cash register", reg.ID.String())
		}
		st.registers[reg.ID] = reg
		return nil
	})
}

func (r *RegisterRepo) AppendHistory(ctx context.Context, e *cash.HistoryEntry) error {
	return r.s.do(ctx, func(st *state) error {
		if id.IsNil(e.ID) {
			e.ID = id.New()
		}
		st.history = append(st.history, *e)
		return nil
	})
}

func (r *RegisterRepo) History(ctx context.Context, registerID id.ID) ([]cash.HistoryEntry, error) {
	var out []cash.HistoryEntry
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.history {
			if e.RegisterID == registerID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
