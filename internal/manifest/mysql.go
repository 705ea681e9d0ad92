package manifest

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const mysqlPort = 3306

// MySQLPVC returns the claim backing the store database.
func (b *Builder) MySQLPVC(namespace string) *corev1.PersistentVolumeClaim {
	return b.pvc(namespace, MySQLDataName, MySQLName, b.cfg.MySQLStorageSize)
}

// MySQLDeployment returns the single-replica database deployment.
func (b *Builder) MySQLDeployment(namespace string) *appsv1.Deployment {
	ping := corev1.ProbeHandler{
		Exec: &corev1.ExecAction{Command: []string{"mysqladmin", "ping", "-h", "localhost"}},
	}
	container := corev1.Container{
		Name:            MySQLName,
		Image:           b.cfg.MySQLImage,
		ImagePullPolicy: b.pullPolicy(),
		Ports:           []corev1.ContainerPort{{ContainerPort: mysqlPort}},
		Env: []corev1.EnvVar{
			secretEnv("MYSQL_ROOT_PASSWORD", MySQLSecretName, "root-password"),
			{Name: "MYSQL_DATABASE", Value: MySQLDatabase},
			{Name: "MYSQL_USER", Value: MySQLUser},
			secretEnv("MYSQL_PASSWORD", MySQLSecretName, "wordpress-password"),
		},
		VolumeMounts: []corev1.VolumeMount{{Name: MySQLDataName, MountPath: "/var/lib/mysql"}},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler:        ping,
			InitialDelaySeconds: 10,
			PeriodSeconds:       5,
			TimeoutSeconds:      3,
		},
		LivenessProbe: &corev1.Probe{
			ProbeHandler:        ping,
			InitialDelaySeconds: 30,
			PeriodSeconds:       10,
			TimeoutSeconds:      3,
		},
		Resources: resources("100m", "256Mi", "500m", "512Mi"),
	}
	return b.deployment(namespace, MySQLName, container, pvcVolume(MySQLDataName))
}

// MySQLService exposes the database inside the namespace.
func (b *Builder) MySQLService(namespace string) *corev1.Service {
	return b.service(namespace, MySQLName, mysqlPort)
}

func (b *Builder) pvc(namespace, name, app, size string) *corev1.PersistentVolumeClaim {
	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: managedLabels(app)},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse(size)},
			},
		},
	}
	if b.cfg.StorageClass != "" {
		claim.Spec.StorageClassName = ptr(b.cfg.StorageClass)
	}
	return claim
}

func (b *Builder) deployment(namespace, app string, container corev1.Container, volumes ...corev1.Volume) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: app, Namespace: namespace, Labels: managedLabels(app)},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{LabelApp: app}},
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{LabelApp: app}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
					Volumes:    volumes,
				},
			},
		},
	}
}

func (b *Builder) service(namespace, app string, port int32) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: app, Namespace: namespace, Labels: managedLabels(app)},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Ports:    []corev1.ServicePort{{Port: port, TargetPort: intstr.FromInt32(port)}},
			Selector: map[string]string{LabelApp: app},
		},
	}
}
