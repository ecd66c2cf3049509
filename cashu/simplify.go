package cashu

import "errors"

var ErrMultipleMints = errors.New("token contains proofs from multiple mints")

// SimplifiedToken is a flattened view of a decoded token: one mint, one
// unit, all proofs in a single list.
type SimplifiedToken struct {
	Mint      string
	Unit      string
	Memo      string
	Proofs    Proofs
	SumProofs uint64
}

// SimplifyToken flattens a token into a SimplifiedToken. Tokens whose
// proofs reference more than one mint cannot be redeemed in a single
// swap and are rejected.
func SimplifyToken(token Token) (*SimplifiedToken, error) {
	simplified := &SimplifiedToken{Unit: Sat.String()}

	switch t := token.(type) {
	case *TokenV3:
		for _, tokenProof := range t.Token {
			if simplified.Mint == "" {
				simplified.Mint = tokenProof.Mint
			} else if simplified.Mint != tokenProof.Mint {
				return nil, ErrMultipleMints
			}
			simplified.Proofs = append(simplified.Proofs, tokenProof.Proofs...)
		}
		if t.Unit != "" {
			simplified.Unit = t.Unit
		}
		simplified.Memo = t.Memo
	case TokenV3:
		return SimplifyToken(&t)
	case *TokenV4:
		simplified.Mint = t.MintURL
		simplified.Proofs = t.Proofs()
		if t.Unit != "" {
			simplified.Unit = t.Unit
		}
		simplified.Memo = t.Memo
	case TokenV4:
		return SimplifyToken(&t)
	default:
		simplified.Mint = token.Mint()
		simplified.Proofs = token.Proofs()
	}

	simplified.SumProofs = simplified.Proofs.Amount()
	return simplified, nil
}
