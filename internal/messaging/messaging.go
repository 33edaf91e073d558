package messaging

// cSpell:ignore mqtt

type QoS byte

const (
	AtMostOnce    QoS = 0
	FireAndForget QoS = 0
	AtLeastOnce   QoS = 1
	ExactlyOnce   QoS = 2
	AsyncNoWait   QoS = 3 // not a real QoS, will switch to 0 on publish but not wait on returned token
)

func qosToByte(qos QoS) (byte, bool) {
	if qos > 2 {
		return 0, false
	}
	return byte(qos), true
}

// Qilowatt topic layout for one inverter.
const (
	topicRoot     = "Q"
	workModeTopic = "cmd/WORKMODE"
	energyTopic   = "state/ENERGY"
	metricsTopic  = "state/METRICS"
	infoTopic     = "state/INFO"
)
