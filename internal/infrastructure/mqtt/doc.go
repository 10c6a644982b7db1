// Package mqtt provides MQTT client connectivity for PlantStream.
//
// This package manages:
//   - Connection to the plant broker with auto-reconnect
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Machines on the plant floor publish telemetry and tracking events to
// the broker; PlantStream subscribes to the data, tracking, and alert
// hierarchies and feeds messages into the processing pipeline.
//
//	Machines → MQTT Broker → PlantStream → InfluxDB
//
// Handlers registered via Subscribe run on paho's network goroutines,
// a concurrency domain the pipeline does not own. They only enqueue and
// return; all processing happens in the pipeline's own goroutine.
//
// # Reliability
//
//   - Delivery is at least once at QoS 1 (the default)
//   - Reconnect: exponential backoff per config (initial_delay..max_delay)
//   - Subscriptions are restored automatically after reconnect
//   - Mid-run disconnection is a degraded-health signal, never a crash
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DataReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        bridge.Deliver(topic, payload)
//	        return nil
//	    })
package mqtt
