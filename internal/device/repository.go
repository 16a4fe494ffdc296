package device

// Repository is the persistent device registry. It stores only registry
// metadata; live values and states belong to the Store.
type Repository interface {
	SaveSensor(sn Sensor) error
	GetSensor(id string) (Sensor, error)
	ListSensors() ([]Sensor, error)
	DeleteSensor(id string) error

	SaveActuator(a Actuator) error
	GetActuator(id string) (Actuator, error)
	ListActuators() ([]Actuator, error)
	DeleteActuator(id string) error

	Close() error
}
