// Package bledev provides the platform-specific BLE host device used
// for scanning and dialing. The created device is registered as the
// go-ble default so ble.Dial works against it.
package bledev
