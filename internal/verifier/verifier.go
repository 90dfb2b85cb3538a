// Package verifier decides whether a voucher was signed by an authorized minter.
//
// Every failure mode (malformed voucher, bad signature, unknown signer) is
// reported as ErrUnauthorized so callers cannot use the verifier as an oracle.
package verifier

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

// ErrUnauthorized carries the message the LazyNFT contract reverts with.
var ErrUnauthorized = errors.New("Signature invalid or unauthorized") //nolint:staticcheck

// Recoverer recovers the signing identity of a digest.
type Recoverer interface {
	RecoverIdentity(digest [32]byte, sig []byte) (common.Address, error)
}

// ECDSARecoverer is secp256k1 ecrecover with low-S enforcement.
type ECDSARecoverer struct{}

func (ECDSARecoverer) RecoverIdentity(digest [32]byte, sig []byte) (common.Address, error) {
	return voucher.RecoverDigest(digest, sig)
}

// Policy is the set of identities allowed to sign vouchers.
type Policy struct {
	mu      sync.RWMutex
	signers map[common.Address]struct{}
}

func NewPolicy(signers ...common.Address) *Policy {
	p := &Policy{signers: make(map[common.Address]struct{}, len(signers))}
	for _, s := range signers {
		p.signers[s] = struct{}{}
	}
	return p
}

func (p *Policy) Grant(addr common.Address) {
	p.mu.Lock()
	p.signers[addr] = struct{}{}
	p.mu.Unlock()
}

func (p *Policy) Revoke(addr common.Address) {
	p.mu.Lock()
	delete(p.signers, addr)
	p.mu.Unlock()
}

// Authorize reports whether addr may sign vouchers.
func (p *Policy) Authorize(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.signers[addr]
	return ok
}

// Members returns the authorized identities in no particular order.
func (p *Policy) Members() []common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]common.Address, 0, len(p.signers))
	for a := range p.signers {
		out = append(out, a)
	}
	return out
}

// Verifier checks vouchers for one domain against one policy.
type Verifier struct {
	domain    voucher.Domain
	policy    *Policy
	recoverer Recoverer
}

func New(domain voucher.Domain, policy *Policy, r Recoverer) *Verifier {
	if r == nil {
		r = ECDSARecoverer{}
	}
	return &Verifier{domain: domain, policy: policy, recoverer: r}
}

func (v *Verifier) Domain() voucher.Domain { return v.domain }

func (v *Verifier) Policy() *Policy { return v.policy }

// RecoverSigner returns the identity that signed vc. It does not consult the policy.
func (v *Verifier) RecoverSigner(vc *voucher.NFTVoucher) (common.Address, error) {
	if err := vc.Validate(); err != nil {
		return common.Address{}, ErrUnauthorized
	}
	signer, err := v.recoverer.RecoverIdentity(voucher.Digest(vc, v.domain), vc.Signature)
	if err != nil {
		return common.Address{}, ErrUnauthorized
	}
	return signer, nil
}

// Verify returns the authorized signer of vc, or ErrUnauthorized.
func (v *Verifier) Verify(vc *voucher.NFTVoucher) (common.Address, error) {
	signer, err := v.RecoverSigner(vc)
	if err != nil {
		return common.Address{}, err
	}
	if !v.policy.Authorize(signer) {
		return common.Address{}, ErrUnauthorized
	}
	return signer, nil
}
