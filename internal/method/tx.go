package method

// Tx.Select, Tx.Commit, Tx.Rollback take no arguments; their *Ok replies
// take none either. They are modeled as empty structs so the channel
// layer's generic "encode, write, await reply" path stays uniform with
// the other RPCs.

type TxSelectArgs struct{}

func (TxSelectArgs) Encode() ([]byte, error) { return nil, nil }

type TxCommitArgs struct{}

func (TxCommitArgs) Encode() ([]byte, error) { return nil, nil }

type TxRollbackArgs struct{}

func (TxRollbackArgs) Encode() ([]byte, error) { return nil, nil }
