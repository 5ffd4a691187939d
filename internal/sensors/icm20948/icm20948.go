package icm20948

import (
	"fmt"
	"time"

	"ratefilter/internal/i2c"
)

var sleep = time.Sleep

// ICM-20948 gyro driver for rate filtering.
//
// The gyro runs at 2000 dps full scale with the on-chip low-pass at its
// widest setting so the rate filter sees the sensor's own noise. When
// requested, RAW_DATA_0_RDY drives INT1 so sampling can follow the chip's
// output data rate instead of a software ticker.

const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	regPwrMgmt2   = 0x07
	bitReset      = 0x80
	clkAuto       = 0x01
	regIntPinCfg  = 0x0F
	regIntEnable1 = 0x11
	bitRawRdyEn   = 0x01
	regGyroXoutH  = 0x33

	// Bank 2.
	bank2         = 2
	regGyroSmplrt = 0x00
	regGyroConfig = 0x01

	// GYRO_CONFIG_1: FS_SEL=3 (2000 dps), FCHOICE=1, DLPFCFG=0.
	gyroConfig2000dps = 0x07
	fullScaleDps      = 2000.0

	baseRateHz = 1125
)

type Sample struct {
	Time time.Time
	// Gyro in deg/s.
	Gx, Gy, Gz float64
}

type Options struct {
	// RateHz is the requested output data rate; the chip rounds it to
	// 1125/(div+1).
	RateHz int
	// DataReadyInterrupt routes raw-data-ready to INT1.
	DataReadyInterrupt bool
}

type Device struct {
	dev regIO

	curBank   byte
	scaleGyro float64
	rateHz    float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev, opts)
}

func newWithIO(dev regIO, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// sampleRateDivider returns GYRO_SMPLRT_DIV for the requested rate.
func sampleRateDivider(rateHz int) byte {
	if rateHz <= 0 || rateHz >= baseRateHz {
		return 0
	}
	div := baseRateHz/rateHz - 1
	if div > 255 {
		div = 255
	}
	return byte(div)
}

func (d *Device) init(opts Options) error {
	if err := d.setBank(0); err != nil {
		return err
	}

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset returns the chip to bank 0.
	d.curBank = 0

	if err := d.dev.WriteReg(regPwrMgmt1, clkAuto); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	// Accel off, gyro on.
	if err := d.dev.WriteReg(regPwrMgmt2, 0x38); err != nil {
		return fmt.Errorf("icm20948: power config failed: %w", err)
	}

	if err := d.setBank(bank2); err != nil {
		return err
	}
	div := sampleRateDivider(opts.RateHz)
	if err := d.dev.WriteReg(regGyroSmplrt, div); err != nil {
		return fmt.Errorf("icm20948: sample rate config failed: %w", err)
	}
	if err := d.dev.WriteReg(regGyroConfig, gyroConfig2000dps); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}

	if err := d.setBank(0); err != nil {
		return err
	}
	if opts.DataReadyInterrupt {
		// Active high, push-pull, 50us pulse.
		if err := d.dev.WriteReg(regIntPinCfg, 0x00); err != nil {
			return fmt.Errorf("icm20948: int pin config failed: %w", err)
		}
		if err := d.dev.WriteReg(regIntEnable1, bitRawRdyEn); err != nil {
			return fmt.Errorf("icm20948: data ready enable failed: %w", err)
		}
	}

	d.scaleGyro = fullScaleDps / 32768.0
	d.rateHz = float64(baseRateHz) / float64(int(div)+1)
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// RateHz is the output data rate the chip was configured for.
func (d *Device) RateHz() float64 { return d.rateHz }

func (d *Device) ReadGyro() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	var buf [6]byte
	if err := d.dev.ReadReg(regGyroXoutH, buf[:]); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read gyro failed: %w", err)
	}

	gx := int16(buf[0])<<8 | int16(buf[1])
	gy := int16(buf[2])<<8 | int16(buf[3])
	gz := int16(buf[4])<<8 | int16(buf[5])

	return Sample{
		Time: time.Now(),
		Gx:   float64(gx) * d.scaleGyro,
		Gy:   float64(gy) * d.scaleGyro,
		Gz:   float64(gz) * d.scaleGyro,
	}, nil
}
