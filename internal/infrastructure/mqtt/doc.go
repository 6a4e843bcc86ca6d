// Package mqtt provides the broker connection used by the bridge.
//
// This package manages:
//   - The startup connect loop and paho's own reconnection afterwards
//   - Publishing with QoS and retain control
//   - Subscriptions restored after reconnect (Home Assistant birth messages)
//   - Availability via Last Will and Testament
//
// # Topics
//
//	{prefix}/sensor/{node}/{unique_id}/config   discovery (retained)
//	obd/{unique_id}                             sensor values
//	obd2mqtt/{client_id}/availability           online / offline (retained, LWT)
//	obd2mqtt/{node}/status                      bridge status JSON (retained)
//
// # Usage
//
//	client, err := mqtt.ConnectWithRetry(ctx, cfg.MQTT, cfg.MQTTRetryInterval(), log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish(mqtt.Topics{}.SensorState(uid), []byte("1726"), 0, false)
package mqtt
