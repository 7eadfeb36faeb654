package config

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/backupmon/backupmon/internal/model"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		DeliveryTypeHookFunc(),
	)),
}

// DeliveryTypeHookFunc rejects delivery types that no content store knows about.
func DeliveryTypeHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(model.DeliveryTypeEmail) {
			return data, nil
		}
		value := strings.ToLower(strings.TrimSpace(data.(string)))
		for _, deliveryType := range model.DeliveryTypes {
			if string(deliveryType) == value {
				return deliveryType, nil
			}
		}
		return nil, errors.Errorf("unknown delivery type %q", data)
	}
}
