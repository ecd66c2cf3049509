package wallet

import (
	"cmp"
	"errors"
	"maps"
	"math/bits"
	"slices"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/crypto"
)

var (
	ErrCannotSplitAmount   = errors.New("amount cannot be represented with the keyset denominations")
	ErrInsufficientAmounts = errors.New("requested amount is more than the total of the provided amounts")
)

// SplitToAmounts splits the amount into the largest denominations the
// keyset signs for, e.g. 2561 -> [2048, 512, 1].
func SplitToAmounts(amount uint64, keyset *crypto.WalletKeyset) ([]uint64, error) {
	denominations := keysetDenominations(keyset)

	split := make([]uint64, 0)
	remaining := amount
	for _, denomination := range denominations {
		for denomination <= remaining {
			split = append(split, denomination)
			remaining -= denomination
		}
	}
	if remaining != 0 {
		return nil, ErrCannotSplitAmount
	}

	return split, nil
}

// keyset denominations sorted largest first
func keysetDenominations(keyset *crypto.WalletKeyset) []uint64 {
	denominations := make([]uint64, 0, len(keyset.PublicKeys))
	for amount := range keyset.PublicKeys {
		denominations = append(denominations, amount)
	}
	slices.SortFunc(denominations, func(a, b uint64) int { return cmp.Compare(b, a) })
	return denominations
}

// SelectProofsToSend picks the proofs to cover targetAmount: an exact
// subset with the fewest proofs if one exists, otherwise the smallest
// single proof covering the target, otherwise greedily from the largest
// down. An empty send list means the proofs do not cover the target.
func SelectProofsToSend(proofs cashu.Proofs, targetAmount uint64) (send, keep cashu.Proofs) {
	if proofs.Amount() < targetAmount {
		return cashu.Proofs{}, proofs
	}

	if idxs, ok := exactSubset(proofs, targetAmount); ok {
		return partition(proofs, idxs)
	}

	smallestCovering := -1
	for i, proof := range proofs {
		if proof.Amount >= targetAmount &&
			(smallestCovering == -1 || proof.Amount < proofs[smallestCovering].Amount) {
			smallestCovering = i
		}
	}
	if smallestCovering != -1 {
		return partition(proofs, []int{smallestCovering})
	}

	byAmountDesc := make([]int, len(proofs))
	for i := range proofs {
		byAmountDesc[i] = i
	}
	slices.SortStableFunc(byAmountDesc, func(a, b int) int {
		return cmp.Compare(proofs[b].Amount, proofs[a].Amount)
	})

	var sum uint64
	greedy := make([]int, 0, len(proofs))
	for _, idx := range byAmountDesc {
		if sum >= targetAmount {
			break
		}
		greedy = append(greedy, idx)
		sum += proofs[idx].Amount
	}
	return partition(proofs, greedy)
}

// exactSubset finds a subset of proofs summing exactly to target,
// preferring fewer proofs, then fewer distinct denominations.
func exactSubset(proofs cashu.Proofs, target uint64) ([]int, bool) {
	type subset struct {
		count    int
		distinct int
		idxs     []int
	}

	distinctAmounts := func(idxs []int) int {
		seen := make(map[uint64]struct{}, len(idxs))
		for _, idx := range idxs {
			seen[proofs[idx].Amount] = struct{}{}
		}
		return len(seen)
	}

	// fewest proofs reaching each sum up to target
	best := map[uint64]subset{0: {}}
	for i, proof := range proofs {
		if proof.Amount > target {
			continue
		}

		snapshot := make(map[uint64]subset, len(best))
		maps.Copy(snapshot, best)

		sums := make([]uint64, 0, len(snapshot))
		for sum := range snapshot {
			sums = append(sums, sum)
		}
		slices.Sort(sums)
		for _, sum := range sums {
			newSum := sum + proof.Amount
			if newSum > target {
				continue
			}
			idxs := append(slices.Clone(snapshot[sum].idxs), i)
			candidate := subset{
				count:    snapshot[sum].count + 1,
				distinct: distinctAmounts(idxs),
				idxs:     idxs,
			}
			current, ok := best[newSum]
			if !ok || candidate.count < current.count ||
				(candidate.count == current.count && candidate.distinct < current.distinct) {
				best[newSum] = candidate
			}
		}
	}

	if found, ok := best[target]; ok {
		return found.idxs, true
	}
	return nil, false
}

func partition(proofs cashu.Proofs, sendIdxs []int) (send, keep cashu.Proofs) {
	send = make(cashu.Proofs, 0, len(sendIdxs))
	keep = make(cashu.Proofs, 0, len(proofs)-len(sendIdxs))
	for i, proof := range proofs {
		if slices.Contains(sendIdxs, i) {
			send = append(send, proof)
		} else {
			keep = append(keep, proof)
		}
	}
	return send, keep
}

// SplitAmountsForPayment divides the held denominations into the set to
// send for requestedAmount and the set to keep. When the held
// denominations cannot make the amount exactly, the smallest held
// denomination larger than the shortfall is split in two.
func SplitAmountsForPayment(inputAmounts []uint64, keyset *crypto.WalletKeyset, requestedAmount uint64) (
	keep []uint64, send []uint64, err error) {

	var total uint64
	for _, amount := range inputAmounts {
		total += amount
	}
	if requestedAmount > total {
		return nil, nil, ErrInsufficientAmounts
	}

	amounts := slices.Clone(inputAmounts)
	slices.SortFunc(amounts, func(a, b uint64) int { return cmp.Compare(b, a) })

	remaining := requestedAmount
	send = make([]uint64, 0, len(amounts))
	unused := make([]uint64, 0, len(amounts))
	for _, amount := range amounts {
		if amount <= remaining {
			send = append(send, amount)
			remaining -= amount
		} else {
			unused = append(unused, amount)
		}
	}

	if remaining == 0 {
		return unused, send, nil
	}

	// unused is sorted largest first, so the last entry is the smallest
	// denomination that can cover what is left
	toSplit := unused[len(unused)-1]
	keep = append(keep, unused[:len(unused)-1]...)

	sendSplit, err := SplitToAmounts(remaining, keyset)
	if err != nil {
		return nil, nil, err
	}
	keepSplit, err := SplitToAmounts(toSplit-remaining, keyset)
	if err != nil {
		return nil, nil, err
	}

	send = append(send, sendSplit...)
	keep = append(keep, keepSplit...)
	return keep, send, nil
}

// blank outputs for a fee reserve per
// https://github.com/cashubtc/nuts/blob/main/08.md
func calculateNumberOfBlankOutputs(feeReserve uint64) int {
	if feeReserve == 0 {
		return 0
	}
	return bits.Len64(feeReserve - 1)
}

// ComputeFee returns the fee the mint will charge for spending the
// proofs, from the input_fee_ppk of each proof's keyset.
func ComputeFee(proofs cashu.Proofs, keysetFees map[string]uint) uint64 {
	var feePpk uint64
	for _, proof := range proofs {
		feePpk += uint64(keysetFees[proof.Id])
	}
	return (feePpk + 999) / 1000
}
