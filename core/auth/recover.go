package auth

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("invalid signature")

// RecoverAddress recovers the signer address of a personal-sign signature
// over message. The message is hashed with the EIP-191 prefix before
// recovery, which is what every wallet produces for text signing.
func RecoverAddress(message []byte, signatureHex string) (common.Address, error) {
	signature, err := hexutil.Decode(signatureHex)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}

	if len(signature) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}

	// https://stackoverflow.com/questions/49085737/geth-ecrecover-invalid-signature-recovery-id
	if signature[crypto.RecoveryIDOffset] == 27 || signature[crypto.RecoveryIDOffset] == 28 {
		signature[crypto.RecoveryIDOffset] -= 27 // Transform yellow paper V from 27/28 to 0/1
	}

	hash := accounts.TextHash(message)

	sigPublicKey, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}

	return crypto.PubkeyToAddress(*sigPublicKey), nil
}
