// Package method encodes and decodes the AMQP 0-9-1 method argument
// lists for the class/method pairs this client exercises.
package method

// Class IDs.
const (
	ClassConnection = 10
	ClassChannel    = 20
	ClassExchange   = 40
	ClassQueue      = 50
	ClassBasic      = 60
	ClassConfirm    = 85
	ClassTx         = 90
)

// Connection method IDs.
const (
	ConnectionStart          = 10
	ConnectionStartOk        = 11
	ConnectionTune           = 30
	ConnectionTuneOk         = 31
	ConnectionOpen           = 40
	ConnectionOpenOk         = 41
	ConnectionClose          = 50
	ConnectionCloseOk        = 51
	ConnectionBlocked        = 60
	ConnectionUnblocked      = 61
	ConnectionUpdateSecret   = 70
	ConnectionUpdateSecretOk = 71
)

// Channel method IDs.
const (
	ChannelOpen    = 10
	ChannelOpenOk  = 11
	ChannelClose   = 40
	ChannelCloseOk = 41
)

// Exchange method IDs.
const (
	ExchangeDeclare   = 10
	ExchangeDeclareOk = 11
	ExchangeDelete    = 20
	ExchangeDeleteOk  = 21
	ExchangeBind      = 30
	ExchangeBindOk    = 31
	ExchangeUnbind    = 40
	ExchangeUnbindOk  = 51
)

// Queue method IDs.
const (
	QueueDeclare   = 10
	QueueDeclareOk = 11
	QueueBind      = 20
	QueueBindOk    = 21
	QueuePurge     = 30
	QueuePurgeOk   = 31
	QueueDelete    = 40
	QueueDeleteOk  = 41
	QueueUnbind    = 50
	QueueUnbindOk  = 51
)

// Basic method IDs.
const (
	BasicQos        = 10
	BasicQosOk      = 11
	BasicConsume    = 20
	BasicConsumeOk  = 21
	BasicCancel     = 30
	BasicCancelOk   = 31
	BasicPublish    = 40
	BasicReturn     = 50
	BasicDeliver    = 60
	BasicGet        = 70
	BasicGetOk      = 71
	BasicGetEmpty   = 72
	BasicAck        = 80
	BasicReject     = 90
	BasicRecover    = 110
	BasicRecoverOk  = 111
	BasicNack       = 120
)

// Confirm method IDs.
const (
	ConfirmSelect   = 10
	ConfirmSelectOk = 11
)

// Tx method IDs.
const (
	TxSelect     = 10
	TxSelectOk   = 11
	TxCommit     = 20
	TxCommitOk   = 21
	TxRollback   = 30
	TxRollbackOk = 31
)

// Name returns a human-readable "class.method" name for logging and
// error messages, e.g. for ChannelClosed causes.
func Name(classID, methodID uint16) string {
	if n, ok := names[[2]uint16{classID, methodID}]; ok {
		return n
	}
	return "unknown"
}

var names = map[[2]uint16]string{
	{ClassConnection, ConnectionStart}:          "connection.start",
	{ClassConnection, ConnectionStartOk}:        "connection.start-ok",
	{ClassConnection, ConnectionTune}:           "connection.tune",
	{ClassConnection, ConnectionTuneOk}:         "connection.tune-ok",
	{ClassConnection, ConnectionOpen}:           "connection.open",
	{ClassConnection, ConnectionOpenOk}:         "connection.open-ok",
	{ClassConnection, ConnectionClose}:          "connection.close",
	{ClassConnection, ConnectionCloseOk}:        "connection.close-ok",
	{ClassConnection, ConnectionBlocked}:        "connection.blocked",
	{ClassConnection, ConnectionUnblocked}:      "connection.unblocked",
	{ClassConnection, ConnectionUpdateSecret}:   "connection.update-secret",
	{ClassConnection, ConnectionUpdateSecretOk}: "connection.update-secret-ok",

	{ClassChannel, ChannelOpen}:    "channel.open",
	{ClassChannel, ChannelOpenOk}:  "channel.open-ok",
	{ClassChannel, ChannelClose}:   "channel.close",
	{ClassChannel, ChannelCloseOk}: "channel.close-ok",

	{ClassExchange, ExchangeDeclare}:   "exchange.declare",
	{ClassExchange, ExchangeDeclareOk}: "exchange.declare-ok",
	{ClassExchange, ExchangeDelete}:    "exchange.delete",
	{ClassExchange, ExchangeDeleteOk}:  "exchange.delete-ok",
	{ClassExchange, ExchangeBind}:      "exchange.bind",
	{ClassExchange, ExchangeBindOk}:    "exchange.bind-ok",
	{ClassExchange, ExchangeUnbind}:    "exchange.unbind",
	{ClassExchange, ExchangeUnbindOk}:  "exchange.unbind-ok",

	{ClassQueue, QueueDeclare}:   "queue.declare",
	{ClassQueue, QueueDeclareOk}: "queue.declare-ok",
	{ClassQueue, QueueBind}:      "queue.bind",
	{ClassQueue, QueueBindOk}:    "queue.bind-ok",
	{ClassQueue, QueuePurge}:     "queue.purge",
	{ClassQueue, QueuePurgeOk}:   "queue.purge-ok",
	{ClassQueue, QueueDelete}:    "queue.delete",
	{ClassQueue, QueueDeleteOk}:  "queue.delete-ok",
	{ClassQueue, QueueUnbind}:    "queue.unbind",
	{ClassQueue, QueueUnbindOk}:  "queue.unbind-ok",

	{ClassBasic, BasicQos}:       "basic.qos",
	{ClassBasic, BasicQosOk}:     "basic.qos-ok",
	{ClassBasic, BasicConsume}:   "basic.consume",
	{ClassBasic, BasicConsumeOk}: "basic.consume-ok",
	{ClassBasic, BasicCancel}:    "basic.cancel",
	{ClassBasic, BasicCancelOk}:  "basic.cancel-ok",
	{ClassBasic, BasicPublish}:   "basic.publish",
	{ClassBasic, BasicReturn}:    "basic.return",
	{ClassBasic, BasicDeliver}:   "basic.deliver",
	{ClassBasic, BasicGet}:       "basic.get",
	{ClassBasic, BasicGetOk}:     "basic.get-ok",
	{ClassBasic, BasicGetEmpty}:  "basic.get-empty",
	{ClassBasic, BasicAck}:       "basic.ack",
	{ClassBasic, BasicReject}:    "basic.reject",
	{ClassBasic, BasicRecover}:   "basic.recover",
	{ClassBasic, BasicRecoverOk}: "basic.recover-ok",
	{ClassBasic, BasicNack}:      "basic.nack",

	{ClassConfirm, ConfirmSelect}:   "confirm.select",
	{ClassConfirm, ConfirmSelectOk}: "confirm.select-ok",

	{ClassTx, TxSelect}:     "tx.select",
	{ClassTx, TxSelectOk}:   "tx.select-ok",
	{ClassTx, TxCommit}:     "tx.commit",
	{ClassTx, TxCommitOk}:   "tx.commit-ok",
	{ClassTx, TxRollback}:   "tx.rollback",
	{ClassTx, TxRollbackOk}: "tx.rollback-ok",
}
