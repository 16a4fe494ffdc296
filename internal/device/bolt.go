package device

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// sensorBucket stores sensor registry records keyed by ID
	sensorBucket = "sensors"

	// actuatorBucket stores actuator registry records keyed by ID
	actuatorBucket = "actuators"
)

// BoltRepository is a bbolt implementation of the Repository interface
type BoltRepository struct {
	db *bbolt.DB
}

// NewBoltRepository opens (or creates) the registry database file
func NewBoltRepository(path string) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	// Create the buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sensorBucket)); err != nil {
			return fmt.Errorf("failed to create sensor bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(actuatorBucket)); err != nil {
			return fmt.Errorf("failed to create actuator bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltRepository{db: db}, nil
}

// SaveSensor creates or replaces a sensor record
func (r *BoltRepository) SaveSensor(sn Sensor) error {
	return r.put(sensorBucket, sn.ID, sn)
}

// GetSensor returns a sensor record by ID
func (r *BoltRepository) GetSensor(id string) (Sensor, error) {
	var sn Sensor
	err := r.get(sensorBucket, id, &sn)
	return sn, err
}

// ListSensors returns all sensor records
func (r *BoltRepository) ListSensors() ([]Sensor, error) {
	var sensors []Sensor
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sensorBucket)).ForEach(func(_, v []byte) error {
			var sn Sensor
			if err := json.Unmarshal(v, &sn); err != nil {
				return fmt.Errorf("failed to unmarshal sensor: %w", err)
			}
			sensors = append(sensors, sn)
			return nil
		})
	})
	return sensors, err
}

// DeleteSensor removes a sensor record
func (r *BoltRepository) DeleteSensor(id string) error {
	return r.delete(sensorBucket, id)
}

// SaveActuator creates or replaces an actuator record
func (r *BoltRepository) SaveActuator(a Actuator) error {
	return r.put(actuatorBucket, a.ID, a)
}

// GetActuator returns an actuator record by ID
func (r *BoltRepository) GetActuator(id string) (Actuator, error) {
	var a Actuator
	err := r.get(actuatorBucket, id, &a)
	return a, err
}

// ListActuators returns all actuator records
func (r *BoltRepository) ListActuators() ([]Actuator, error) {
	var actuators []Actuator
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(actuatorBucket)).ForEach(func(_, v []byte) error {
			var a Actuator
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal actuator: %w", err)
			}
			actuators = append(actuators, a)
			return nil
		})
	})
	return actuators, err
}

// DeleteActuator removes an actuator record
func (r *BoltRepository) DeleteActuator(id string) error {
	return r.delete(actuatorBucket, id)
}

// Empty reports whether the registry holds no devices at all.
// Used to decide whether the default devices need seeding.
func (r *BoltRepository) Empty() (bool, error) {
	empty := true
	err := r.db.View(func(tx *bbolt.Tx) error {
		if k, _ := tx.Bucket([]byte(sensorBucket)).Cursor().First(); k != nil {
			empty = false
			return nil
		}
		if k, _ := tx.Bucket([]byte(actuatorBucket)).Cursor().First(); k != nil {
			empty = false
		}
		return nil
	})
	return empty, err
}

// Close closes the underlying database
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) put(bucket, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", bucket, err)
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(id), data)
	})
}

func (r *BoltRepository) get(bucket, id string, v interface{}) error {
	return r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

func (r *BoltRepository) delete(bucket, id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(id))
	})
}
