// Package factory creates vaults and owns the protocol fee they pay.
package factory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/pool"
	"liquidityVault/internal/vault"
)

// MaxProtocolFee caps the protocol's cut of collected fees.
const MaxProtocolFee = 200_000

var (
	ErrProtocolFee       = ledger.Fail(ledger.KindValidation, "protocolFee must be <= 200000")
	ErrUnknownPool       = ledger.Fail(ledger.KindValidation, "pool")
	ErrGovernance        = ledger.Fail(ledger.KindAuthorization, "governance")
	ErrPendingGovernance = ledger.Fail(ledger.KindAuthorization, "pendingGovernance")
)

// Config describes a factory deployment.
type Config struct {
	Address     common.Address
	Governance  common.Address
	ProtocolFee uint32
}

// Factory creates vaults, keeps the list of vaults it created and holds the
// protocol fee and its governance.
type Factory struct {
	ledger  *ledger.Ledger
	address common.Address
	logger  *zap.Logger

	pools  *xsync.Map[common.Address, pool.Pool]
	vaults *xsync.Map[common.Address, *vault.Vault]

	state *state
}

type state struct {
	governance        common.Address
	pendingGovernance common.Address
	protocolFee       uint32
	nonce             uint64
	list              []common.Address
	members           map[common.Address]struct{}
}

func (s *state) clone() *state {
	out := *s
	out.list = append([]common.Address(nil), s.list...)
	out.members = make(map[common.Address]struct{}, len(s.members))
	for addr := range s.members {
		out.members[addr] = struct{}{}
	}
	return &out
}

// New deploys a factory on l.
func New(ctx context.Context, l *ledger.Ledger, cfg Config, logger *zap.Logger) (*Factory, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProtocolFee > MaxProtocolFee {
		return nil, ErrProtocolFee
	}
	f := &Factory{
		ledger:  l,
		address: cfg.Address,
		logger:  logger.With(zap.String("factory", cfg.Address.Hex())),
		pools:   xsync.NewMap[common.Address, pool.Pool](),
		vaults:  xsync.NewMap[common.Address, *vault.Vault](),
		state: &state{
			governance:  cfg.Governance,
			protocolFee: cfg.ProtocolFee,
			members:     make(map[common.Address]struct{}),
		},
	}
	l.Register(ctx, f)
	return f, nil
}

// Snapshot implements ledger.Snapshotter.
func (f *Factory) Snapshot() any { return f.state }

// Restore implements ledger.Snapshotter.
func (f *Factory) Restore(snapshot any) {
	if st, ok := snapshot.(*state); ok {
		f.state = st
	}
}

func (f *Factory) Address() common.Address { return f.address }

// RegisterPool makes p available to CreateVault.
func (f *Factory) RegisterPool(p pool.Pool) {
	f.pools.Store(p.Address(), p)
}

// CreateVault validates params and deploys a vault on the registered pool at
// poolAddr. Anyone may create a vault.
func (f *Factory) CreateVault(ctx context.Context, sender, poolAddr common.Address, params vault.Params) (*vault.Vault, error) {
	p, ok := f.pools.Load(poolAddr)
	if !ok {
		return nil, ErrUnknownPool
	}

	var created *vault.Vault
	err := f.apply(ctx, sender, func(ctx context.Context, st *state) error {
		addr := crypto.CreateAddress(f.address, st.nonce)
		st.nonce++
		v, err := vault.New(ctx, f.ledger, p, f, vault.Config{Address: addr, Factory: f.address, Params: params}, f.logger)
		if err != nil {
			return err
		}
		index := uint64(len(st.list))
		st.list = append(st.list, addr)
		st.members[addr] = struct{}{}
		created = v
		return f.ledger.Emit(ctx, f.address, model.EventNewVault, model.NewVaultEventData{
			Vault: addr.Hex(),
			Pool:  poolAddr.Hex(),
			Index: index,
		})
	})
	if err != nil {
		return nil, err
	}
	f.vaults.Store(created.Address(), created)
	f.logger.Info("vault created",
		zap.String("vault", created.Address().Hex()),
		zap.String("pool", poolAddr.Hex()),
		zap.String("sender", sender.Hex()),
	)
	return created, nil
}

// ProtocolFee returns the current protocol fee.
func (f *Factory) ProtocolFee(ctx context.Context) uint32 {
	var fee uint32
	_ = f.view(ctx, func(st *state) { fee = st.protocolFee })
	return fee
}

// Governance returns the current governance address.
func (f *Factory) Governance(ctx context.Context) common.Address {
	var out common.Address
	_ = f.view(ctx, func(st *state) { out = st.governance })
	return out
}

// PendingGovernance returns the nominated governance address, if any.
func (f *Factory) PendingGovernance(ctx context.Context) common.Address {
	var out common.Address
	_ = f.view(ctx, func(st *state) { out = st.pendingGovernance })
	return out
}

// SetProtocolFee changes the protocol fee. Vaults pick it up on their next
// rebalance.
func (f *Factory) SetProtocolFee(ctx context.Context, sender common.Address, fee uint32) error {
	err := f.governanceCall(ctx, sender, func(st *state) error {
		if fee > MaxProtocolFee {
			return ErrProtocolFee
		}
		st.protocolFee = fee
		return nil
	})
	if err == nil {
		f.logger.Info("protocol fee changed", zap.Uint32("protocol_fee", fee))
	}
	return err
}

// SetGovernance nominates a new governance, who has to accept.
func (f *Factory) SetGovernance(ctx context.Context, sender, governance common.Address) error {
	return f.governanceCall(ctx, sender, func(st *state) error {
		st.pendingGovernance = governance
		return nil
	})
}

// AcceptGovernance completes a handover started with SetGovernance.
func (f *Factory) AcceptGovernance(ctx context.Context, sender common.Address) error {
	err := f.apply(ctx, sender, func(_ context.Context, st *state) error {
		if st.pendingGovernance == (common.Address{}) || sender != st.pendingGovernance {
			return ErrPendingGovernance
		}
		st.governance = sender
		st.pendingGovernance = common.Address{}
		return nil
	})
	if err == nil {
		f.logger.Info("governance changed", zap.String("governance", sender.Hex()))
	}
	return err
}

// NumVaults returns how many vaults the factory created.
func (f *Factory) NumVaults(ctx context.Context) int {
	var n int
	_ = f.view(ctx, func(st *state) { n = len(st.list) })
	return n
}

// VaultAt returns the address of the i-th vault created.
func (f *Factory) VaultAt(ctx context.Context, i int) (common.Address, error) {
	var out common.Address
	var err error
	_ = f.view(ctx, func(st *state) {
		if i < 0 || i >= len(st.list) {
			err = fmt.Errorf("vault index %d out of range [0, %d)", i, len(st.list))
			return
		}
		out = st.list[i]
	})
	return out, err
}

// IsVault reports whether addr is a vault created by this factory.
func (f *Factory) IsVault(ctx context.Context, addr common.Address) bool {
	var ok bool
	_ = f.view(ctx, func(st *state) { _, ok = st.members[addr] })
	return ok
}

// Vault returns the vault deployed at addr.
func (f *Factory) Vault(ctx context.Context, addr common.Address) (*vault.Vault, bool) {
	if !f.IsVault(ctx, addr) {
		return nil, false
	}
	return f.vaults.Load(addr)
}

// Vaults returns every vault in creation order.
func (f *Factory) Vaults(ctx context.Context) []*vault.Vault {
	var addrs []common.Address
	_ = f.view(ctx, func(st *state) { addrs = append(addrs, st.list...) })
	out := make([]*vault.Vault, 0, len(addrs))
	for _, addr := range addrs {
		if v, ok := f.vaults.Load(addr); ok {
			out = append(out, v)
		}
	}
	return out
}

func (f *Factory) governanceCall(ctx context.Context, sender common.Address, fn func(st *state) error) error {
	return f.apply(ctx, sender, func(_ context.Context, st *state) error {
		if sender != st.governance {
			return ErrGovernance
		}
		return fn(st)
	})
}

func (f *Factory) apply(ctx context.Context, sender common.Address, fn func(ctx context.Context, st *state) error) error {
	return f.ledger.Execute(ctx, sender, func(ctx context.Context, _ ledger.Call) error {
		next := f.state.clone()
		if err := fn(ctx, next); err != nil {
			return err
		}
		f.state = next
		return nil
	})
}

func (f *Factory) view(ctx context.Context, fn func(st *state)) error {
	return f.ledger.View(ctx, func(context.Context) error {
		fn(f.state)
		return nil
	})
}
