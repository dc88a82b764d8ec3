package types

import (
	"bytes"
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// minTxEncodedSize is the encoding of a transaction with empty data.
const minTxEncodedSize = 1 + 8 + 8 + IDSize

// Transaction is an opaque user transaction as submitted by a full node.
type Transaction struct {
	Data                []byte
	ApplicationPriority uint64
	SequenceNumber      uint64
	ID                  ID
}

// NewTransaction builds a transaction and derives its id from the content.
func NewTransaction(data []byte, applicationPriority, sequenceNumber uint64) Transaction {
	tx := Transaction{
		Data:                data,
		ApplicationPriority: applicationPriority,
		SequenceNumber:      sequenceNumber,
	}
	tx.ID = tx.computeID()
	return tx
}

func (tx *Transaction) computeID() ID {
	ser := &bcs.Serializer{}
	ser.WriteBytes(tx.Data)
	ser.U64(tx.ApplicationPriority)
	ser.U64(tx.SequenceNumber)
	return hashID(ser.ToBytes())
}

// Verify checks that the id matches the transaction content.
func (tx *Transaction) Verify() error {
	if expected := tx.computeID(); expected != tx.ID {
		return fmt.Errorf("transaction id mismatch: expected %s, got %s", expected, tx.ID)
	}
	return nil
}

// EncodedSize returns the length of the BCS encoding of the transaction.
func (tx *Transaction) EncodedSize() int {
	return SequenceLenSize(len(tx.Data)) + len(tx.Data) + 8 + 8 + IDSize
}

// Equal reports whether two transactions are identical.
func (tx *Transaction) Equal(other *Transaction) bool {
	return tx.ID == other.ID &&
		tx.ApplicationPriority == other.ApplicationPriority &&
		tx.SequenceNumber == other.SequenceNumber &&
		bytes.Equal(tx.Data, other.Data)
}

// MarshalBCS implements bcs.Marshaler.
func (tx *Transaction) MarshalBCS(ser *bcs.Serializer) {
	ser.WriteBytes(tx.Data)
	ser.U64(tx.ApplicationPriority)
	ser.U64(tx.SequenceNumber)
	ser.FixedBytes(tx.ID[:])
}

// UnmarshalBCS implements bcs.Unmarshaler.
func (tx *Transaction) UnmarshalBCS(des *bcs.Deserializer) {
	tx.Data = des.ReadBytes()
	tx.ApplicationPriority = des.U64()
	tx.SequenceNumber = des.U64()
	id := des.ReadFixedBytes(IDSize)
	if des.Error() != nil {
		return
	}
	copy(tx.ID[:], id)
}

// Transactions is an ordered list of transactions. It is the payload of a
// batch and the body of a block.
type Transactions []Transaction

// EncodedSize returns the length of the BCS encoding of the list.
func (txs Transactions) EncodedSize() int {
	size := SequenceLenSize(len(txs))
	for i := range txs {
		size += txs[i].EncodedSize()
	}
	return size
}

// MarshalBCS implements bcs.Marshaler.
func (txs *Transactions) MarshalBCS(ser *bcs.Serializer) {
	ser.Uleb128(uint32(len(*txs)))
	for i := range *txs {
		ser.Struct(&(*txs)[i])
	}
}

// UnmarshalBCS implements bcs.Unmarshaler.
func (txs *Transactions) UnmarshalBCS(des *bcs.Deserializer) {
	n := readSequenceLen(des, minTxEncodedSize)
	out := make(Transactions, 0, n)
	for i := 0; i < n; i++ {
		var tx Transaction
		des.Struct(&tx)
		if des.Error() != nil {
			return
		}
		out = append(out, tx)
	}
	*txs = out
}
